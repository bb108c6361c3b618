package board

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/events"
	"board-api/gateway"
)

const maxNotices = 32

// Deduper prevents reprocessing of duplicate mutation commits.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the gateway call
	// fails so the caller may retry the mutation.
	Remove(ctx context.Context, userID, key string) error
}

// Notice is a non-fatal, user-dismissible error surfaced by the pipeline
// when a gateway call fails after its optimistic apply was rolled back.
type Notice struct {
	TaskID    string `json:"taskId"`
	Action    string `json:"action"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Notices drains and returns pending pipeline notices.
func (e *Engine) Notices() []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.notices
	e.notices = nil
	return out
}

func (e *Engine) pushNoticeLocked(n Notice) {
	if len(e.notices) >= maxNotices {
		e.notices = e.notices[1:]
	}
	e.notices = append(e.notices, n)
}

// UpdateTask routes a field patch through the mutation pipeline: the cache
// is patched synchronously so the view reflects it with zero latency, the
// gateway update is issued asynchronously, and on failure the cache is
// rolled back to its pre-mutation state. An optional idempotency key
// deduplicates repeated commits across retries.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch domain.Patch, idempotencyKey string) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsZero() {
		return nil
	}
	if idempotencyKey != "" && e.deduper != nil {
		fresh, err := e.deduper.Add(ctx, e.userID, idempotencyKey)
		if err != nil {
			e.logger.Warnf("deduper unavailable, committing anyway: %v", err)
		} else if !fresh {
			return nil
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(ctx, id, patch, idempotencyKey)
}

// commitLocked captures the reversal token and applies the patch under the
// engine lock, then hands settlement to a goroutine. The token is captured
// at commit time, after any earlier in-flight mutation's optimistic apply,
// so an out-of-order failure of the earlier mutation cannot erase this one.
func (e *Engine) commitLocked(_ context.Context, id string, patch domain.Patch, idempotencyKey string) error {
	tok, err := e.cache.Apply(id, patch)
	if err != nil {
		return err
	}
	e.settles.Add(1)
	go e.settleUpdate(tok, id, patch, idempotencyKey)
	return nil
}

func (e *Engine) settleUpdate(tok RevertToken, id string, patch domain.Patch, idempotencyKey string) {
	defer e.settles.Done()
	ctx, cancel := context.WithTimeout(context.Background(), e.settleTimeout)
	err := e.store.UpdateTask(ctx, e.userID, id, patch)
	cancel()

	status := ""
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	if err != nil {
		e.mu.Lock()
		e.cache.Revert(tok)
		e.pushNoticeLocked(Notice{
			TaskID:    id,
			Action:    "update",
			Message:   "No se pudo guardar el cambio, vuelve a intentarlo",
			Retryable: true,
		})
		e.mu.Unlock()
		e.logger.WithFields(log.Fields{"user": e.userID, "task": id}).
			Warnf("update rolled back: %v", err)
		if idempotencyKey != "" && e.deduper != nil {
			if rerr := e.deduper.Remove(context.Background(), e.userID, idempotencyKey); rerr != nil {
				e.logger.Errorf("dedupe rollback failed, key: %s, err: %v", idempotencyKey, rerr)
			}
		}
	} else {
		e.publishChanged(id)
	}
	e.recordActivity(id, "update", status, err == nil)
	e.refreshAfterSettle()
}

// CreateTask creates a task through the gateway. Identity is assigned by the
// store, so creation is not optimistic: the cache learns the task only once
// the gateway has returned it.
func (e *Engine) CreateTask(ctx context.Context, fields domain.Fields) (domain.Task, error) {
	if err := fields.Validate(); err != nil {
		return domain.Task{}, err
	}
	task, err := e.store.CreateTask(ctx, e.userID, fields)
	if err != nil {
		return domain.Task{}, err
	}
	e.mu.Lock()
	e.cache.Insert(task)
	e.mu.Unlock()
	e.publishChanged(task.ID)
	e.recordActivity(task.ID, "create", string(task.Status), true)
	return task, nil
}

// QuickAdd is sugar over CreateTask: a title dropped straight into a column
// with the default priority.
func (e *Engine) QuickAdd(ctx context.Context, title string, status domain.Status) (domain.Task, error) {
	return e.CreateTask(ctx, domain.Fields{
		Title:    title,
		Status:   status,
		Priority: domain.PriorityMedium,
	})
}

// DeleteTask removes the task optimistically and issues the gateway delete.
// Deletion is terminal; the only rollback path is a failed gateway call.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	e.mu.Lock()
	tok, err := e.cache.Remove(id)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.settles.Add(1)
	go e.settleDelete(tok, id)
	return nil
}

func (e *Engine) settleDelete(tok RevertToken, id string) {
	defer e.settles.Done()
	ctx, cancel := context.WithTimeout(context.Background(), e.settleTimeout)
	err := e.store.DeleteTask(ctx, e.userID, id)
	cancel()

	if err != nil {
		e.mu.Lock()
		e.cache.Revert(tok)
		e.pushNoticeLocked(Notice{
			TaskID:    id,
			Action:    "delete",
			Message:   "No se pudo eliminar la tarea, vuelve a intentarlo",
			Retryable: true,
		})
		e.mu.Unlock()
		e.logger.WithFields(log.Fields{"user": e.userID, "task": id}).
			Warnf("delete rolled back: %v", err)
	} else {
		e.publishChanged(id)
	}
	e.recordActivity(id, "delete", "", err == nil)
	e.refreshAfterSettle()
}

// refreshAfterSettle re-reads the authoritative listing after a settled
// mutation so the cache converges with concurrent remote edits. A failed
// refresh keeps the last-known-good contents.
func (e *Engine) refreshAfterSettle() {
	ctx, cancel := context.WithTimeout(context.Background(), e.settleTimeout)
	defer cancel()
	tasks, err := e.store.ListTasks(ctx, e.userID)
	if err != nil {
		e.logger.WithFields(log.Fields{"user": e.userID}).
			Debugf("post-settle refresh failed, keeping cached view: %v", err)
		return
	}
	e.mu.Lock()
	e.cache.Replace(tasks)
	e.mu.Unlock()
}

func (e *Engine) publishChanged(taskID string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(context.Background(), e.userID, events.Event{
		Type:      events.TypeBoardChanged,
		TaskID:    taskID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (e *Engine) recordActivity(taskID, action, status string, ok bool) {
	if e.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.settleTimeout)
	defer cancel()
	e.activity.Record(ctx, gateway.ActivityEntry{
		UserID:    e.userID,
		TaskID:    taskID,
		Action:    action,
		Status:    status,
		Succeeded: ok,
	})
}
