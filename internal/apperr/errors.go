// Package apperr defines the sentinel error taxonomy for note-store failures.
//
// The client layer classifies every failure into one of these sentinels and
// returns it; nothing above the client should ever see an unclassified error.
package apperr

import (
	"errors"
	"net"
	"net/url"
)

var (
	// ErrCannotConnect is a transport-level failure: the note-store server
	// is unreachable or the configured host URL is malformed.
	ErrCannotConnect = errors.New("cannot connect with note server")

	// ErrNoResult means the server was reachable but reported failure or an
	// empty payload for a search. Benign at the UI boundary.
	ErrNoResult = errors.New("no searching result")

	// ErrUnsupported marks a deliberately disabled operation on the
	// read-only transport (block mutation). Not an oversight.
	ErrUnsupported = errors.New("not supported by HTTP server (read-only)")

	// ErrUnknown covers everything else; full detail is logged at the
	// classification site.
	ErrUnknown = errors.New("unknown issue")
)

// Classify maps an arbitrary error into the taxonomy. Errors already carrying
// a sentinel pass through unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCannotConnect),
		errors.Is(err, ErrNoResult),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrUnknown):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrCannotConnect
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrCannotConnect
	}
	return ErrUnknown
}
