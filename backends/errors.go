package backends

import (
	"fmt"
)

// TransportError is any remote-call failure: connectivity, auth, quota,
// timeout, or an error status from the host. Code is the HTTP status when
// one was received, otherwise zero.
type TransportError struct {
	Backend string
	Op      string
	Code    int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %s failed (http %d): %v", e.Backend, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PublishError means the artifact uploaded fine but no public link could be
// produced for it.
type PublishError struct {
	Backend string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: could not produce a public link: %v", e.Backend, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
