package board

import (
	"errors"

	"board-api/domain"
)

var (
	// ErrDragActive is returned when a gesture starts while another is in
	// progress.
	ErrDragActive = errors.New("drag session already active")
	// ErrNoDrag is returned by gesture updates outside an active session.
	ErrNoDrag = errors.New("no active drag session")
)

// DragSession is the transient state of one in-progress reorder gesture,
// from pointer-down to release or cancel. The zero session does not exist:
// a session is always created over a known task.
type DragSession struct {
	taskID      string
	startStatus domain.Status
	candidate   domain.Status
}

func newDragSession(taskID string, status domain.Status) *DragSession {
	return &DragSession{taskID: taskID, startStatus: status, candidate: status}
}

// TaskID identifies the task being moved.
func (s *DragSession) TaskID() string { return s.taskID }

// StartStatus is the column the task occupied when the gesture began.
func (s *DragSession) StartStatus() domain.Status { return s.startStatus }

// Candidate is the column the task would land in if released now.
func (s *DragSession) Candidate() domain.Status { return s.candidate }

// setCandidate records the column under the pointer. Relabeling only; no
// mutation is emitted until the gesture ends.
func (s *DragSession) setCandidate(status domain.Status) bool {
	if !status.Valid() || status == s.candidate {
		return false
	}
	s.candidate = status
	return true
}

// wouldCommit reports whether releasing now produces a mutation request.
func (s *DragSession) wouldCommit() bool {
	return s.candidate != s.startStatus
}
