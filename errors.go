package contexture

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable signals that the embedder or generator backing a
// component is not ready. It is fatal: callers see it directly, no component
// silently falls back when the model itself is gone.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrHTTP is a non-2xx response from a model server.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// MalformedOutputError is model output that could not be parsed into the
// expected shape (reranker verdicts, agent actions). It is always recovered
// locally: the reranker zeroes the affected document, the agent counts it
// toward the emergency fallback.
type MalformedOutputError struct {
	Raw    string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return "malformed model output: " + e.Reason
}

// StoreError wraps a failure of an index backend (e.g. a remote store being
// unreachable). The pipeline treats it as an empty retrieval rather than
// crashing, for local and remote backends alike.
type StoreError struct {
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
