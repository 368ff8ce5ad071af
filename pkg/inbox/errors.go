package inbox

import "errors"

var (
	ErrRepositoryNil   = errors.New("repository cannot be nil")
	ErrPayloadNil      = errors.New("payload cannot be nil")
	ErrPayloadMarshal  = errors.New("failed to marshal payload to JSON")
	ErrTaskCreate      = errors.New("failed to create task in storage")
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotClaimed  = errors.New("task is not in processing state")
	ErrNoTaskToClaim   = errors.New("no task to claim")
	ErrHandlerNotFound = errors.New("no handler registered for task")
	ErrNoHandlers      = errors.New("no task handlers registered")
	ErrAlreadyStarted  = errors.New("worker already started")
	ErrNotStarted      = errors.New("worker not started")

	ErrFailedToClaimTask        = errors.New("failed to claim task from storage")
	ErrFailedToUpdateTaskStatus = errors.New("failed to update task status")
	ErrFailedToMoveToDLQ        = errors.New("failed to move task to dead letter queue")
)

// permanentError marks a handler failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker dead-letters the task without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
