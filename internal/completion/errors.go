package completion

import (
	"errors"
	"fmt"
)

// ErrServiceUnavailable matches every *ServiceUnavailableError.
var ErrServiceUnavailable = errors.New("completion service unavailable")

// ServiceUnavailableError reports a service that is not ready to serve
// prompts. Callers may trigger a download and retry the whole run.
type ServiceUnavailableError struct {
	Service string
	Status  Availability
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	msg := fmt.Sprintf("%s not ready: %s", e.Service, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

func (e *ServiceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// CompletionError is returned after the original call and its retry failed.
type CompletionError struct {
	Attempts int
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
