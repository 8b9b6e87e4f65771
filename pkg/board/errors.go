package board

import (
	"errors"
	"fmt"

	"github.com/bk-med/kanban/pkg/client"
)

var (
	ErrClosed        = errors.New("board is closed")
	ErrUnknownTask   = errors.New("task is not on the board")
	ErrInvalidStatus = errors.New("invalid task status")
)

// LoadError records a failed Load. The board is empty until the next
// successful Load; calling Load again is always safe.
type LoadError struct {
	ProjectID string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load tasks for project %s: %v", e.ProjectID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the Load may succeed without user
// action.
func (e *LoadError) Retryable() bool {
	switch client.KindOf(e.Err) {
	case client.KindAuthentication, client.KindAuthorization, client.KindNotFound:
		return false
	}
	return true
}

// MoveError records a failed status change. The task has already been put
// back to Restored when the error is returned.
type MoveError struct {
	TaskID   string
	To       client.Status
	Restored client.Status
	Err      error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("failed to move task %s to %s (restored to %s): %v", e.TaskID, e.To, e.Restored, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }
