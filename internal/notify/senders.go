package notify

import (
	"time"

	"github.com/sells-group/hotcalls-poller/internal/config"
)

// SendersFromConfig builds the configured alert senders. An empty result is
// valid: failures then only reach the error log. When a sender cannot be
// built the others are still returned alongside the error.
func SendersFromConfig(cfg config.NotifyConfig) ([]Sender, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	var (
		senders  []Sender
		buildErr error
	)

	urls := append([]string(nil), cfg.URLs...)
	if u := SMTPURL(cfg.SMTP); u != "" {
		urls = append(urls, u)
	}
	if len(urls) > 0 {
		if mail, err := NewMailSender(timeout, urls...); err != nil {
			buildErr = err
		} else {
			senders = append(senders, mail)
		}
	}

	if cfg.WebhookURL != "" {
		senders = append(senders, NewWebhookSender(cfg.WebhookURL, timeout))
	}
	return senders, buildErr
}
