// Package board implements the task-board synchronization engine: a locally
// mutable view over a remote authoritative task collection, with optimistic
// status mutations, drag-gesture tracking and rollback on gateway failure.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/events"
	"board-api/gateway"
)

const defaultSettleTimeout = 30 * time.Second

// Config carries the engine's collaborators. Store is required; everything
// else degrades to a no-op when absent.
type Config struct {
	Store         gateway.TaskStore
	Deduper       Deduper
	Publisher     *events.Publisher
	Activity      *gateway.ActivityRecorder
	Logger        *log.Logger
	SettleTimeout time.Duration
}

// Engine hosts one user's board: the remote cache, the optimistic projector,
// the drag session controller, the mutation pipeline and the session's
// filter state. A mutex stands in for the original single-threaded event
// loop: gesture handling and view derivation are synchronous and never
// perform I/O under the lock; only gateway settlements run concurrently.
type Engine struct {
	userID        string
	store         gateway.TaskStore
	deduper       Deduper
	publisher     *events.Publisher
	activity      *gateway.ActivityRecorder
	logger        *log.Logger
	settleTimeout time.Duration

	mu      sync.Mutex
	cache   *RemoteCache
	proj    *projector
	drag    *DragSession
	opts    ViewOptions
	notices []Notice

	settles sync.WaitGroup
}

// NewEngine creates an engine for one user session.
func NewEngine(userID string, cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("board.NewEngine: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	cache := NewRemoteCache()
	return &Engine{
		userID:        userID,
		store:         cfg.Store,
		deduper:       cfg.Deduper,
		publisher:     cfg.Publisher,
		activity:      cfg.Activity,
		logger:        cfg.Logger,
		settleTimeout: cfg.SettleTimeout,
		cache:         cache,
		proj:          newProjector(cache),
		opts:          ViewOptions{Sort: SortNewest},
	}, nil
}

// UserID names the session owner.
func (e *Engine) UserID() string { return e.userID }

// Refresh replaces the cache with the gateway's current listing. On failure
// the cache keeps its last-known-good contents and the error is surfaced to
// the caller as retryable; it never clears to empty.
func (e *Engine) Refresh(ctx context.Context) error {
	tasks, err := e.store.ListTasks(ctx, e.userID)
	if err != nil {
		e.logger.WithFields(log.Fields{"user": e.userID}).Warnf("board refresh failed: %v", err)
		return fmt.Errorf("refresh tasks: %w", err)
	}
	e.mu.Lock()
	e.cache.Replace(tasks)
	e.mu.Unlock()
	return nil
}

// WorkingView returns the task list the user currently sees: the cache
// contents, or the frozen drag-time view with one status overlaid.
func (e *Engine) WorkingView() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proj.workingView()
}

// Columns runs the filter/sort stage over the working view and groups the
// result into the three fixed columns.
func (e *Engine) Columns() []Column {
	e.mu.Lock()
	defer e.mu.Unlock()
	return BuildColumns(e.proj.workingView(), e.opts)
}

// Options returns the session's current filter/sort state.
func (e *Engine) Options() ViewOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// SetSearch updates the search text filter.
func (e *Engine) SetSearch(text string) {
	e.mu.Lock()
	e.opts.Search = text
	e.mu.Unlock()
}

// SetPriorityFilter restricts the view to one priority; nil clears it.
func (e *Engine) SetPriorityFilter(p *domain.Priority) error {
	if p != nil && !p.Valid() {
		return fmt.Errorf("unknown priority %q", string(*p))
	}
	e.mu.Lock()
	e.opts.Priority = p
	e.mu.Unlock()
	return nil
}

// SetSort selects the sort key.
func (e *Engine) SetSort(key SortKey) error {
	if !key.Valid() {
		return fmt.Errorf("unknown sort key %q", string(key))
	}
	e.mu.Lock()
	e.opts.Sort = key
	e.mu.Unlock()
	return nil
}

// BeginDrag starts a gesture over the given task, freezing the working view
// for the session's duration.
func (e *Engine) BeginDrag(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag != nil {
		return ErrDragActive
	}
	task, ok := e.cache.Get(id)
	if !ok {
		return ErrUnknownTask
	}
	e.drag = newDragSession(id, task.Status)
	e.proj.freeze(id, task.Status)
	return nil
}

// DragSession returns a copy of the active session, if any.
func (e *Engine) DragSession() (DragSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return DragSession{}, false
	}
	return *e.drag, true
}

// UpdateDragTarget records the column under the pointer and relabels the
// dragged task in the working view. Pure relabeling; no mutation is issued.
func (e *Engine) UpdateDragTarget(status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", string(status))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return ErrNoDrag
	}
	if e.drag.setCandidate(status) {
		e.proj.setOverlay(status)
	}
	return nil
}

// UpdateDragPointer resolves the droppable under the pointer geometrically
// and, when one is found, forwards it as the candidate target. It reports
// the resolved status and whether any target was hit.
func (e *Engine) UpdateDragPointer(x, y float64, targets []DropTarget) (domain.Status, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return "", false, ErrNoDrag
	}
	status, ok := ResolveDropTarget(x, y, targets)
	if !ok {
		return "", false, nil
	}
	if e.drag.setCandidate(status) {
		e.proj.setOverlay(status)
	}
	return status, true, nil
}

// EndDrag commits the gesture. When the candidate column differs from the
// starting one, exactly one status mutation is emitted through the pipeline;
// releasing back over the starting column emits nothing. A task deleted
// remotely mid-gesture is detected against the live cache and the drop is
// silently absorbed. Reports whether a mutation was committed.
func (e *Engine) EndDrag(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return false, ErrNoDrag
	}
	session := e.drag
	e.drag = nil
	e.proj.release()

	if !session.wouldCommit() {
		return false, nil
	}
	if !e.cache.Contains(session.TaskID()) {
		// Expected race: the task vanished from the authoritative store
		// while the gesture was in flight. Not an error.
		e.logger.WithFields(log.Fields{"user": e.userID, "task": session.TaskID()}).
			Debug("drop target vanished mid-gesture, ignoring")
		return false, nil
	}

	target := session.Candidate()
	if err := e.commitLocked(ctx, session.TaskID(), domain.StatusPatch(target), ""); err != nil {
		return false, err
	}
	if target == domain.StatusDone {
		e.celebrate(session.TaskID())
	}
	return true, nil
}

// CancelDrag aborts the gesture with no side effects: the working view
// resumes tracking the cache, which was never touched.
func (e *Engine) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return
	}
	e.drag = nil
	e.proj.release()
}

// celebrate fires the one-shot cosmetic event for a task landing in done.
// It must never block or delay the mutation, hence the goroutine.
func (e *Engine) celebrate(taskID string) {
	if e.publisher == nil {
		return
	}
	go e.publisher.Publish(context.Background(), e.userID, events.Event{
		Type:      events.TypeTaskCompleted,
		TaskID:    taskID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Wait blocks until all in-flight settlements have finished. Intended for
// tests and shutdown.
func (e *Engine) Wait() {
	e.settles.Wait()
}
