package poster

import (
	"errors"
	"fmt"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// Precondition failures. These are never retried.
var (
	ErrUnresolvedTask   = errors.New("task project or module id is missing")
	ErrZeroDuration     = errors.New("user attended for zero seconds")
	ErrNonPositiveHours = errors.New("computed hours are not positive")
	ErrAlreadyPosted    = errors.New("meeting already posted")
)

// PreconditionError reports which precondition blocked a post.
type PreconditionError struct {
	Err       error
	MeetingID string
	TaskID    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot post meeting %s to task %s: %v", e.MeetingID, e.TaskID, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// UnrecordedError means the time entry was created externally but the
// ledger write failed. Entry holds what must still be recorded.
type UnrecordedError struct {
	Err   error
	Entry model.PostedEntry
}

func (e *UnrecordedError) Error() string {
	return fmt.Sprintf("time entry for %s posted but not recorded: %v", e.Entry.Fingerprint, e.Err)
}

func (e *UnrecordedError) Unwrap() error {
	return e.Err
}
