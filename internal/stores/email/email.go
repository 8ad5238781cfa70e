package email

import (
	"fmt"
	"net/smtp"

	"lifecycle-service/internal/config"
)

// Conf sends plain-text mail over SMTP. It satisfies notify.Sender.
type Conf struct {
	cfg config.SMTP
}

func NewConf(cfg config.SMTP) (*Conf, error) {
	if cfg.Host == "" || cfg.Port == "" {
		return nil, fmt.Errorf("smtp host/port not configured")
	}
	return &Conf{cfg: cfg}, nil
}

func (c *Conf) Send(to, subject, body string) error {
	message := []byte("To: " + to + "\r\n" +
		"From: " + c.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	if err := smtp.SendMail(c.cfg.Host+":"+c.cfg.Port, auth, c.cfg.From, []string{to}, message); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}
