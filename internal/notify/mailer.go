// Package notify delivers outbound user email. The core treats delivery as
// fire-and-forget: a failed send is logged and reported, never surfaced to the
// requester.
package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// EmailSender is the contract the authentication service consumes.
type EmailSender interface {
	SendPasswordReset(ctx context.Context, to, resetToken, locale string) error
}

// HashRecipient returns a short digest of an address for log lines, so
// delivery can be traced without storing raw addresses in the log stream.
func HashRecipient(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:8])
}

// DevMailer logs emails instead of sending them. The raw token appears in the
// log line on purpose: in development the log is the inbox.
type DevMailer struct {
	Logger     *slog.Logger
	AppBaseURL string
}

func (m *DevMailer) SendPasswordReset(ctx context.Context, to, resetToken, locale string) error {
	m.Logger.InfoContext(ctx, "email (dev, not sent)",
		"type", "password_reset",
		"to", to,
		"locale", locale,
		"link", m.AppBaseURL+"/reset-password?token="+resetToken,
	)
	return nil
}
