package codec

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region constants

const maxRetries = 2 // max 2 retries = 3 total attempts

const defaultBackoff = 100 * time.Millisecond

// #endregion

// #region retry

// withRetry runs fn until it succeeds, fails with a non-transient error or
// maxRetries retries have been spent. The wait grows linearly with backoff.
func withRetry(ctx context.Context, backoff time.Duration, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !transient(err) || attempt >= maxRetries {
			return err
		}
		select {
		case <-time.After(backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return err
		}
	}
}

// transient reports whether err is worth retrying: the service was not
// reachable yet.
func transient(err error) bool {
	return status.Code(err) == codes.Unavailable
}

// #endregion
