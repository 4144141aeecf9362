package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// MailConfig configures the SMTP channel.
type MailConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Server    string `json:"server" yaml:"server"`
	Port      int    `json:"port" yaml:"port"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	Recipient string `json:"recipient" yaml:"recipient"`
}

// Mail sends digests as plain-text email over SMTP.
type Mail struct {
	cfg MailConfig
}

// NewMail builds a Mail notifier. An empty recipient defaults to the sender.
func NewMail(cfg MailConfig) *Mail {
	if cfg.Recipient == "" {
		cfg.Recipient = cfg.Username
	}
	return &Mail{cfg: cfg}
}

func (m *Mail) Name() string { return "mail" }

// Send delivers the message, retrying without auth when the server does not
// support it.
func (m *Mail) Send(title, body string) error {
	msg := email.NewEmail()
	msg.From = fmt.Sprintf("cdc-bot <%s>", m.cfg.Username)
	msg.To = []string{m.cfg.Recipient}
	msg.Subject = title
	msg.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	err := msg.Send(addr, smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		return msg.Send(addr, nil)
	}
	return err
}
