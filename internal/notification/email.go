package notification

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// EmailNotifier sends alerts as plain-text mail.
type EmailNotifier struct {
	cfg  SMTPConfig
	to   []string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an SMTP notifier. to is a comma-separated list.
func NewEmailNotifier(cfg SMTPConfig, to string) *EmailNotifier {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	var rcpts []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rcpts = append(rcpts, r)
		}
	}
	return &EmailNotifier{cfg: cfg, to: rcpts, send: smtp.SendMail}
}

func (e *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	if len(e.to) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.cfg.User != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	if err := e.send(addr, auth, e.cfg.From, e.to, e.message(alert)); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	log.Printf("[email] sent alert to %d recipient(s): %s", len(e.to), alert.Title)
	return nil
}

func (e *EmailNotifier) message(alert Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", alert.Level, alert.Title)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(alert.Message)
	b.WriteString("\r\n")
	return []byte(b.String())
}
