package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive matches create requests for an instance that is live in this process.
	ErrAlreadyActive = errors.New("instance already active")
	// ErrInvalidID is returned for identifiers that are not safe as directory names.
	ErrInvalidID = errors.New("invalid instance id")
	// ErrClosed is returned once Shutdown has started.
	ErrClosed = errors.New("supervisor closed")
)

// AlreadyActiveError reports which instance was already live.
type AlreadyActiveError struct {
	ID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("instance %s is already active", e.ID)
}

func (e *AlreadyActiveError) Is(target error) bool {
	return target == ErrAlreadyActive
}
