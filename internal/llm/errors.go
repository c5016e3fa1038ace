package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrBackendUnavailable marks failures worth retrying on the next backend:
// timeouts, unreachable hosts, rate limiting and server errors. Anything else,
// such as a rejected request, ends the fallback chain.
var ErrBackendUnavailable = errors.New("generator backend unavailable")

func unavailable(backend string, err error) error {
	return fmt.Errorf("%s: %w: %w", backend, ErrBackendUnavailable, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
