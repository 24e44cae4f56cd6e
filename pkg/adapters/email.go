package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmailConfig holds SMTP relay parameters.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailAdapter sends mail through an SMTP relay.
type EmailAdapter struct {
	config EmailConfig
	logger *slog.Logger

	// send is swapped in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the email adapter. Returns a mock when no SMTP host is
// configured.
func NewEmail(cfg EmailConfig) Adapter {
	if cfg.Host == "" {
		slog.Info("SMTP host not configured, using mock adapter")
		return Mock("email")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailAdapter{
		config: cfg,
		logger: slog.Default().With("component", "email-adapter"),
		send:   smtp.SendMail,
	}
}

func (a *EmailAdapter) Name() string { return "email" }

// Execute sends input["body"] to input["to"] with input["subject"], CCing
// input["cc"] when present.
func (a *EmailAdapter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	to, _ := input["to"].(string)
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)
	if to == "" || subject == "" || body == "" {
		return nil, fmt.Errorf("email adapter requires to, subject, and body")
	}

	recipients := []string{to}
	if cc, ok := input["cc"].([]any); ok {
		for _, addr := range cc {
			if s, ok := addr.(string); ok && s != "" {
				recipients = append(recipients, s)
			}
		}
	}

	messageID := fmt.Sprintf("<%s@relay>", uuid.New().String())
	var msg strings.Builder
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "From: %s\r\n", a.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	if len(recipients) > 1 {
		fmt.Fprintf(&msg, "Cc: %s\r\n", strings.Join(recipients[1:], ", "))
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n%s", subject, body)

	var auth smtp.Auth
	if a.config.Username != "" {
		auth = smtp.PlainAuth("", a.config.Username, a.config.Password, a.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	// smtp.SendMail has no context variant; run it in a goroutine so the
	// engine's deadline still applies.
	errCh := make(chan error, 1)
	go func() { errCh <- a.send(addr, auth, a.config.From, recipients, []byte(msg.String())) }()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("smtp send failed: %w", err)
		}
	}

	a.logger.Debug("Sent email", "to", to, "message_id", messageID)
	return map[string]any{"message_id": messageID}, nil
}
