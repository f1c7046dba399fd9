package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// classify maps an API error into the core taxonomy.
//
//	404              -> core.ErrNotFound
//	401, 403         -> core.ErrUnauthorized (403 rate limit reasons are retryable)
//	429, 5xx         -> retryable upstream error
//	other 4xx        -> non-retryable upstream error
//	network, timeout -> retryable upstream error
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, core.ErrNotFound)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return core.Upstream(op, err, true)
		case gerr.Code == http.StatusForbidden && rateLimitReason(gerr):
			return core.Upstream(op, err, true)
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%s: %w", op, core.ErrUnauthorized)
		}
		return core.Upstream(op, err, false)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return core.Upstream(op, err, true)
	}
	return core.Upstream(op, err, false)
}

func rateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
