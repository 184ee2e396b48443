package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/mailpilot/internal/gmail"
)

const (
	maxAttempts = 4
	baseDelay   = 500 * time.Millisecond
	maxDelay    = 8 * time.Second
)

// classify maps a transport failure onto the error taxonomy so callers can
// branch on kind instead of matching messages.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var gae *googleapi.Error
	if errors.As(err, &gae) {
		switch {
		case gae.Code == 401:
			return gmail.AuthError(op, err)
		case gae.Code == 403 && isRateReason(gae):
			return gmail.NewError(gmail.KindRateLimit, op, err)
		case gae.Code == 403:
			return gmail.AuthError(op, err)
		case gae.Code == 404:
			return gmail.NotFoundError(op, err)
		case gae.Code == 429:
			return gmail.NewError(gmail.KindRateLimit, op, err)
		case gae.Code >= 500:
			return gmail.NewError(gmail.KindTransient, op, err)
		default:
			return gmail.NewError(gmail.KindPermanent, op, err)
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return gmail.NewError(gmail.KindTransient, op, err)
	}
	return gmail.NewError(gmail.KindPermanent, op, err)
}

func isRateReason(gae *googleapi.Error) bool {
	for _, e := range gae.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "quotaExceeded":
			return true
		}
	}
	msg := strings.ToLower(gae.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}

// withRetry runs fn, retrying rate-limit and transient failures with
// exponential backoff plus jitter up to maxAttempts. Non-idempotent
// operations (send) must not go through here.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}
		err := classify(op, fn())
		if err == nil {
			return nil
		}
		if !gmail.IsRetryable(err) {
			return err
		}
		last = err
	}
	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, maxAttempts, last)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	d := baseDelay << (attempt - 1)
	if d > maxDelay {
		d = maxDelay
	}
	// full jitter keeps concurrent workers from hammering in lockstep
	d = time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
