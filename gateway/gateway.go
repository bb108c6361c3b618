// Package gateway talks to the authoritative remote task collection. The
// board engine never assumes a particular backend; everything behind
// TaskStore is replaceable per deployment.
package gateway

import (
	"context"
	"errors"

	"board-api/domain"
)

// ErrTaskNotFound is returned by UpdateTask when the addressed identity does
// not exist in the store. DeleteTask never returns it; deletes are idempotent.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore is the remote collaborator surface consumed by the board engine.
// All calls may fail independently of each other; callers own retry policy
// beyond what the backend client performs itself.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, userID string, fields domain.Fields) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.Patch) error
	DeleteTask(ctx context.Context, userID, id string) error
}

// IsNotFound reports whether err means the addressed task does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
