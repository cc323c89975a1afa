// Package redis implements the rate-limiting store on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corvidsec/identity/internal/auth"
)

const resetAttemptPrefix = "reset:attempts:"

// ResetAttemptStore counts password-reset requests per email inside a rolling
// window. The window starts at the first attempt and the counter expires with
// it, so an idle address always starts clean.
type ResetAttemptStore struct {
	client *goredis.Client
}

var _ auth.PasswordResetAttemptStore = (*ResetAttemptStore)(nil)

func NewResetAttemptStore(client *goredis.Client) *ResetAttemptStore {
	return &ResetAttemptStore{client: client}
}

// Record registers one attempt and returns the count inside the current
// window, including this one.
func (s *ResetAttemptStore) Record(ctx context.Context, email string, window time.Duration) (int64, error) {
	key := resetAttemptPrefix + email

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("record reset attempt: %w", err)
	}
	// ExpireNX arms the window on the first attempt and heals counters left
	// without a TTL by a crash between INCR and EXPIRE.
	if err := s.client.ExpireNX(ctx, key, window).Err(); err != nil {
		return count, fmt.Errorf("arm attempt window: %w", err)
	}
	return count, nil
}
