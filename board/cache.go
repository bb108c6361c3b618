package board

import (
	"errors"

	"board-api/domain"
)

// ErrUnknownTask is returned when an operation addresses an identity the
// remote cache does not hold.
var ErrUnknownTask = errors.New("unknown task")

// RemoteCache holds the last-known-good snapshot of the authoritative remote
// task collection. It is purely in-memory; refreshing against the gateway is
// the engine's job so the cache itself never suspends. All mutators notify
// subscribers so derived views can recompute.
type RemoteCache struct {
	tasks []domain.Task
	subs  []func()
}

// NewRemoteCache returns an empty cache.
func NewRemoteCache() *RemoteCache {
	return &RemoteCache{}
}

// Subscribe registers fn to run after every content change.
func (c *RemoteCache) Subscribe(fn func()) {
	c.subs = append(c.subs, fn)
}

func (c *RemoteCache) notify() {
	for _, fn := range c.subs {
		fn()
	}
}

// Replace swaps in a fresh authoritative listing.
func (c *RemoteCache) Replace(tasks []domain.Task) {
	c.tasks = domain.CloneTasks(tasks)
	c.notify()
}

// Snapshot returns a deep copy of the current contents. Callers must treat
// a snapshot as theirs; it never aliases cache memory.
func (c *RemoteCache) Snapshot() []domain.Task {
	return domain.CloneTasks(c.tasks)
}

// Len reports how many tasks the cache holds.
func (c *RemoteCache) Len() int {
	return len(c.tasks)
}

// Get returns a copy of the task with the given identity.
func (c *RemoteCache) Get(id string) (domain.Task, bool) {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return c.tasks[i].Clone(), true
		}
	}
	return domain.Task{}, false
}

// Contains reports whether the identity currently exists in the cache.
func (c *RemoteCache) Contains(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// RevertToken captures the minimal state needed to undo one Apply or Remove.
type RevertToken struct {
	id      string
	prev    domain.Task
	index   int
	removed bool
}

// TaskID names the task the token belongs to.
func (t RevertToken) TaskID() string { return t.id }

// Apply patches the task in place and returns a token that restores the
// pre-apply state. Applying to an unknown identity fails.
func (c *RemoteCache) Apply(id string, patch domain.Patch) (RevertToken, error) {
	for i := range c.tasks {
		if c.tasks[i].ID != id {
			continue
		}
		tok := RevertToken{id: id, prev: c.tasks[i].Clone(), index: i}
		patch.Apply(&c.tasks[i])
		c.notify()
		return tok, nil
	}
	return RevertToken{}, ErrUnknownTask
}

// Insert adds a newly created task to the cache.
func (c *RemoteCache) Insert(task domain.Task) {
	c.tasks = append(c.tasks, task.Clone())
	c.notify()
}

// Remove deletes the task optimistically and returns a token that restores
// it at its former position.
func (c *RemoteCache) Remove(id string) (RevertToken, error) {
	for i := range c.tasks {
		if c.tasks[i].ID != id {
			continue
		}
		tok := RevertToken{id: id, prev: c.tasks[i].Clone(), index: i, removed: true}
		c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
		c.notify()
		return tok, nil
	}
	return RevertToken{}, ErrUnknownTask
}

// Revert restores the state captured by the token. For a patched task the
// previous value is written back in place; for a removed task it is
// reinserted at its former position. Reverting an identity that has since
// vanished re-inserts the captured copy so the user's unsynced work is not
// silently discarded.
func (c *RemoteCache) Revert(tok RevertToken) {
	if tok.id == "" {
		return
	}
	if tok.removed {
		i := tok.index
		if i > len(c.tasks) {
			i = len(c.tasks)
		}
		c.tasks = append(c.tasks[:i], append([]domain.Task{tok.prev.Clone()}, c.tasks[i:]...)...)
		c.notify()
		return
	}
	for i := range c.tasks {
		if c.tasks[i].ID == tok.id {
			c.tasks[i] = tok.prev.Clone()
			c.notify()
			return
		}
	}
	i := tok.index
	if i > len(c.tasks) {
		i = len(c.tasks)
	}
	c.tasks = append(c.tasks[:i], append([]domain.Task{tok.prev.Clone()}, c.tasks[i:]...)...)
	c.notify()
}
