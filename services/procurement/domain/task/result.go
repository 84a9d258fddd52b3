package task

import "errors"

// Result is the outcome of one task execution.
type Result struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// OK is a successful result carrying data.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail converts err into a failed result. The error text is passed to callers
// verbatim. Errors wrapped with Transient are marked retryable.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("task failed")
	}
	return Result{Error: err.Error(), Retryable: IsTransient(err)}
}

// With returns r with key set in its metadata.
func (r Result) With(key string, v any) Result {
	md := make(map[string]any, len(r.Metadata)+1)
	for k, val := range r.Metadata {
		md[k] = val
	}
	md[key] = v
	r.Metadata = md
	return r
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying at the queue level: mail transport
// hiccups, supplier timeouts.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
