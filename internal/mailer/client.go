// Package mailer provides an SMTP client for outbound email notifications.
package mailer

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Client sends email through a configured SMTP relay.
type Client struct {
	cfg *config.EmailConfig
	log *logger.Logger
}

// NewClient creates a new mailer client.
func NewClient(cfg *config.EmailConfig, log *logger.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

// Enabled reports whether the email channel is configured for delivery.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// Send delivers an HTML email to the recipients.
func (c *Client) Send(to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if !c.cfg.Enabled {
		c.log.Debug().Strs("to", to).Str("subject", subject).Msg("Email channel disabled, skipping send")
		return nil
	}
	if c.cfg.Host == "" || c.cfg.From == "" {
		return fmt.Errorf("smtp not configured (host/from missing)")
	}

	m := mail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := mail.NewDialer(c.cfg.Host, c.cfg.Port, c.cfg.User, c.cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.SkipTLSVerify, // dev only
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.log.Debug().Strs("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}
