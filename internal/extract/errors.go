package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrNoValidInput means preprocessing left zero usable samples.
	ErrNoValidInput = errors.New("no valid samples for extraction")

	// ErrParse means the provider response could not be parsed into
	// findings. Counts toward the retry budget like a transient failure.
	ErrParse = errors.New("unparseable extraction response")
)

// RemoteError is a non-2xx response from the extraction provider. The
// status code decides whether the call is retried.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("extraction provider returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether err is worth another attempt: rate limiting,
// 5xx-class responses, parse failures, and network-level failures qualify.
// Client-side rejections (other 4xx) are fatal and never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrParse) {
		return true
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode == http.StatusTooManyRequests || re.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
