package source

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownSource is returned when a registry lookup misses.
var ErrUnknownSource = errors.New("unknown source")

// StatusError reports a non-2xx response from an external API.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Permanent reports whether retrying cannot help. Client errors other than
// 408 and 429 are permanent.
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}
