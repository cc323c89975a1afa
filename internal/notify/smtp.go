package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig is the static mailer configuration.
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	TLSMode    string // "starttls" (587) or "tls" (465)
	AppBaseURL string
}

// SMTPMailer sends over plain SMTP with STARTTLS or direct TLS. Failures are
// returned to the caller for logging; the requester never learns whether a
// mail went out.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer validates the target and the From address up front.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if err := ValidateSMTPTarget(cfg.Host, cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid SMTP configuration: %w", err)
	}
	if _, err := sanitizeAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid From address: %w", err)
	}
	return &SMTPMailer{cfg: cfg}, nil
}

var resetSubjects = map[string]string{
	"en": "Reset your password",
	"nl": "Stel je wachtwoord opnieuw in",
	"de": "Passwort zurücksetzen",
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetToken, locale string) error {
	subject, ok := resetSubjects[strings.ToLower(locale)]
	if !ok {
		subject = resetSubjects["en"]
	}

	link := m.cfg.AppBaseURL + "/reset-password?token=" + resetToken
	var body strings.Builder
	body.WriteString("Hello,\r\n\r\n")
	body.WriteString("A password reset was requested for this address.\r\n\r\n")
	body.WriteString("Reset your password: " + link + "\r\n\r\n")
	body.WriteString("The link expires in 1 hour. If you did not request this, you can ignore this message.\r\n")

	if err := m.send(ctx, to, subject, body.String()); err != nil {
		return err
	}
	slog.InfoContext(ctx, "password reset email sent", "to_hash", HashRecipient(to))
	return nil
}

// send speaks the SMTP session. The recipient and sender are re-sanitized and
// the target re-validated per call.
func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if err := ValidateSMTPTarget(m.cfg.Host, m.cfg.Port); err != nil {
		return fmt.Errorf("SMTP target failed validation: %w", err)
	}

	toAddr, err := sanitizeAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	fromAddr, err := sanitizeAddress(m.cfg.From)
	if err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}

	message := buildMessage(fromAddr, toAddr, subject, body)
	serverAddr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	var conn net.Conn
	if m.cfg.TLSMode == "tls" {
		tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
		conn, err = tls.DialWithDialer(dialer, "tcp", serverAddr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", serverAddr)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Quit()

	if m.cfg.TLSMode == "starttls" {
		tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if m.cfg.User != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed")
		}
	}

	if err := client.Mail(fromAddr); err != nil {
		return fmt.Errorf("MAIL command: %w", err)
	}
	if err := client.Rcpt(toAddr); err != nil {
		return fmt.Errorf("RCPT command: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize message: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// sanitizeAddress parses per RFC 5322 and rejects CRLF so a crafted address
// cannot inject headers.
func sanitizeAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(parsed.Address, "\r\n") || strings.ContainsAny(parsed.Name, "\r\n") {
		return "", fmt.Errorf("control characters in address")
	}
	return parsed.Address, nil
}
