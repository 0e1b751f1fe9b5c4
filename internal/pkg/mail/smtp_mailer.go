package mail

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"endurancy/internal/platform/config"
	"github.com/rs/zerolog/log"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends HTML email through an SMTP relay.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sender := m.cfg.FromAddress
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	body := buildMessage(sender, m.cfg.FromName, msg)

	if err := m.send(addr, auth, sender, []string{msg.To}, body); err != nil {
		log.Error().Err(err).Str("to", msg.To).Str("relay", addr).Msg("SMTP send failed")
		return fmt.Errorf("smtp send: %w", err)
	}

	log.Info().Str("to", msg.To).Str("relay", addr).Msg("Email sent")
	return nil
}

func buildMessage(sender, fromName string, msg Message) []byte {
	from := (&mail.Address{Name: fromName, Address: sender}).String()

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	return []byte(b.String())
}
