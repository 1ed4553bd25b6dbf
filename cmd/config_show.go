package main

import (
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hotcalls-poller/internal/config"
)

const redacted = "REDACTED"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Long:        "Prints the configuration after defaults, config.yaml and HOTCALLS_* environment overrides are applied. Passwords are redacted.",
	Annotations: map[string]string{skipValidation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(redactConfig(*cfg))
		if err != nil {
			return eris.Wrap(err, "config show: marshal")
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// redactConfig returns a copy of c with credentials masked.
func redactConfig(c config.Config) config.Config {
	c.Store.DatabaseURL = redactURL(c.Store.DatabaseURL)
	if c.Notify.SMTP.Password != "" {
		c.Notify.SMTP.Password = redacted
	}
	urls := make([]string, len(c.Notify.URLs))
	for i, u := range c.Notify.URLs {
		urls[i] = redactURL(u)
	}
	c.Notify.URLs = urls
	c.Notify.WebhookURL = redactURL(c.Notify.WebhookURL)
	return c
}

// redactURL masks the password of a URL's userinfo. Strings that are not
// URLs with credentials, such as SQLite paths, are returned unchanged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), redacted)
	return u.String()
}
