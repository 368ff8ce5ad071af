package accountdeletion

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/entitlements/pkg/fault"
)

var (
	ErrUnknownTable       = errors.New("accountdeletion: unknown child table")
	ErrFailedToDeleteRows  = errors.New("accountdeletion: failed to delete child rows")
)

// StepError reports the step at which deletion stopped. Steps before it have
// run and a retry of the whole procedure is safe.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("account deletion failed at step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{fault.ErrPartialFailure, e.Err}
}
