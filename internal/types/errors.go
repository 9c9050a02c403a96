package types

import (
	"errors"
	"fmt"
)

// UpstreamError represents a failed call to an embedding provider or vector index.
// The core never retries these; callers decide whether to fail an item or a batch.
type UpstreamError struct {
	Service string
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %s error: %s: %v", e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// IsUpstream reports whether err wraps an UpstreamError
func IsUpstream(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr)
}
