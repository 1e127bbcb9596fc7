package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCatalog is returned when a reachable source holds no tracks.
	ErrEmptyCatalog = errors.New("no music albums found in the library")

	// ErrNoMinter is returned when a local track is located without a handle minter.
	ErrNoMinter = errors.New("no handle minter for local track")
)

// TransportError reports that the remote catalog could not be reached.
type TransportError struct {
	Op         string // "fetch", "read"
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("could not %s %s: HTTP %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("could not %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
