package notify

import (
	"context"
	"io"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotcalls-poller/internal/config"
)

// MailSender delivers alerts through shoutrrr service URLs. The operator
// list is normally a single smtp:// URL carrying every recipient.
type MailSender struct {
	sender *router.ServiceRouter
}

// NewMailSender builds a router over urls. timeout bounds each delivery.
func NewMailSender(timeout time.Duration, urls ...string) (*MailSender, error) {
	if len(urls) == 0 {
		return nil, eris.New("notify: mail sender needs at least one URL")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// The raw error can echo credentials embedded in the URL.
		return nil, eris.Errorf("notify: invalid alert URL (%d configured)", len(urls))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &MailSender{sender: sender}, nil
}

// Name implements Sender.
func (m *MailSender) Name() string { return "shoutrrr" }

// Send implements Sender. The router enforces its own timeout.
func (m *MailSender) Send(_ context.Context, msg Message) error {
	params := types.Params{}
	if msg.Subject != "" {
		params.SetTitle(msg.Subject)
	}
	for _, err := range m.sender.Send(msg.Body, &params) {
		if err != nil {
			return eris.Wrap(err, "notify: shoutrrr send")
		}
	}
	return nil
}

// SMTPURL renders the operator distribution list as a shoutrrr smtp URL.
// It returns "" when no host is configured.
func SMTPURL(cfg config.SMTPConfig) string {
	if cfg.Host == "" {
		return ""
	}

	u := url.URL{
		Scheme: "smtp",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/",
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	q := url.Values{}
	if cfg.FromAddress != "" {
		q.Set("fromaddress", cfg.FromAddress)
	}
	if cfg.FromName != "" {
		q.Set("fromname", cfg.FromName)
	}
	q.Set("toaddresses", strings.Join(cfg.To, ","))
	if cfg.Encryption != "" {
		q.Set("encryption", cfg.Encryption)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
