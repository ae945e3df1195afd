package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT" envDefault:"465"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers a plain text message over implicit TLS.
func (s *SMTPSender) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n" + body + "\r\n")

	conn, err := tls.Dial("tcp", s.cfg.Host+":"+s.cfg.Port, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

// LogMailer only logs. Used when no queue is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendCashPickupEmail(ctx context.Context, userID string, email CashPickupEmail) error {
	m.log.Info("cash pickup email",
		zap.String("user_id", userID),
		zap.String("payout_id", email.PayoutID),
		zap.String("reference", email.Reference),
		zap.String("provider", email.Provider),
	)
	return nil
}

func cashPickupSubject(e CashPickupEmail) string {
	return fmt.Sprintf("Your %s pickup reference: %s", e.Provider, e.Reference)
}

func cashPickupBody(e CashPickupEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nA cash pickup of %s %s is ready to be collected by %s in %s, %s.\n\n",
		e.NetAmount.StringFixed(2), e.Currency, e.RecipientName, e.City, e.Country)
	fmt.Fprintf(&b, "Reference code: %s\n\n", e.Reference)
	for _, line := range e.Instructions {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "\nAmount withdrawn: %s %s (fee %s).\n",
		e.Amount.StringFixed(2), e.Currency, e.Amount.Sub(e.NetAmount).StringFixed(2))
	return b.String()
}
