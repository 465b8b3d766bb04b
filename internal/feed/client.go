package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pollinations/pollenwall/internal/pollen"
)

// Client reads pollen state from a remote generation service. Implementations
// live behind this interface so the engine can be driven by fakes in tests.
type Client interface {
	// ListPollens fetches the current snapshot of active and recent pollens.
	ListPollens(ctx context.Context) ([]pollen.Summary, error)
	// FetchArtifact downloads the artifact bytes behind ref.
	FetchArtifact(ctx context.Context, ref string) ([]byte, error)
}

// ErrNotFound marks an artifact ref that is gone from the gateway. Callers
// skip the pollen and, if it was already done, never retry: no fresher
// artifact will arrive for a content-addressed ref.
var ErrNotFound = errors.New("artifact not found")

// NetworkError wraps a transport-level failure talking to the gateway.
// It is transient: the next poll cycle retries.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError wraps a malformed feed response. Treated like a transient
// failure: logged, cycle skipped, retried next interval.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried on the next poll cycle
// rather than aborting the loop.
func IsTransient(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var pe *ParseError
	return errors.As(err, &pe)
}

// PublicURL returns the public gateway link for an artifact ref, suitable
// for sharing in logs and console output.
func PublicURL(ref string) string {
	ref = strings.TrimPrefix(ref, "/ipfs/")
	ref = strings.TrimPrefix(ref, "/")
	return "https://ipfs.io/ipfs/" + ref
}
