package crawler

import (
	"errors"
	"fmt"

	"github.com/BenjaminSRussell/go_gopher/internal/transport"
)

var (
	// ErrFetchTimeout means the read deadline or a socket timeout expired
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrMalformedBody means a text body ended without the terminator
	ErrMalformedBody = errors.New("body ended without terminator")
	// ErrDecode means a text body is not valid UTF-8
	ErrDecode = errors.New("body is not valid text")
)

// FetchError is a failure to retrieve one selector. It never aborts a
// crawl unless the selector is the root listing.
type FetchError struct {
	Selector string
	// Kind is one of connect, timeout, malformed, decode or io
	Kind string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q (%s): %v", e.Selector, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// failureKind labels an error for logs and metrics
func failureKind(err error) string {
	var ce *transport.ConnectError
	switch {
	case errors.As(err, &ce):
		return "connect"
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedBody):
		return "malformed"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "io"
	}
}
