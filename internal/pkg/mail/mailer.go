package mail

import (
	"context"
	"fmt"
	"time"

	"endurancy/internal/platform/config"
	"github.com/rs/zerolog/log"
)

type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them. Used when
// email.provider is "log".
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("body_bytes", len(msg.HTMLBody)).Msg("Email not delivered (log provider)")
	return nil
}

// New builds the configured mailer wrapped in a circuit breaker.
func New(cfg config.EmailConfig) (Mailer, error) {
	var inner Mailer
	switch cfg.Provider {
	case "", "smtp":
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("email.smtp.host is required for the smtp provider")
		}
		inner = NewSMTPMailer(cfg.SMTP)
	case "log":
		inner = LogMailer{}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	timeout := cfg.Breaker.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewBreakerMailer(inner, cfg.Breaker.FailureThreshold, timeout), nil
}
