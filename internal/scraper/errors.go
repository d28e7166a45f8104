package scraper

import "errors"

var (
	// ErrNotFound is returned by an AreaStore for unknown area ids.
	ErrNotFound = errors.New("area not found")
	// ErrNoArea rejects a job request that names no area.
	ErrNoArea = errors.New("no area selected")
	// ErrUpstreamUnreachable means a fetch exhausted its attempts.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	// ErrCancelled means a cancellation signal was observed. It is not a failure.
	ErrCancelled = errors.New("job cancelled")
)

// noResult reports whether err is one of the two "no result" sentinels a
// fetch can produce.
func noResult(err error) bool {
	return errors.Is(err, ErrUpstreamUnreachable) || errors.Is(err, ErrCancelled)
}
