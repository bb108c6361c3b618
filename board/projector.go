package board

import "board-api/domain"

// projector decides whether the working view tracks the remote cache live or
// holds a frozen copy. While a drag session is active the view is frozen at
// the gesture-start snapshot with exactly one status overlaid, so a
// background refresh cannot snap the dragged card back mid-gesture. Cache
// contents keep updating underneath; the buffered changes simply become
// visible the instant the freeze ends.
type projector struct {
	cache *RemoteCache

	frozen        []domain.Task
	overlayID     string
	overlayStatus domain.Status
}

func newProjector(cache *RemoteCache) *projector {
	return &projector{cache: cache}
}

func (p *projector) active() bool {
	return p.frozen != nil
}

// freeze captures the current cache contents and starts overlaying the
// given task's status.
func (p *projector) freeze(id string, status domain.Status) {
	p.frozen = p.cache.Snapshot()
	p.overlayID = id
	p.overlayStatus = status
}

// setOverlay relabels the dragged task's status in the frozen view.
func (p *projector) setOverlay(status domain.Status) {
	p.overlayStatus = status
}

// release discards the frozen copy; the working view resumes tracking the
// cache, including whatever changed while frozen.
func (p *projector) release() {
	p.frozen = nil
	p.overlayID = ""
	p.overlayStatus = ""
}

// workingView returns what the user currently sees. The caller owns the
// returned slice.
func (p *projector) workingView() []domain.Task {
	if p.frozen == nil {
		return p.cache.Snapshot()
	}
	view := domain.CloneTasks(p.frozen)
	for i := range view {
		if view[i].ID == p.overlayID && p.overlayStatus.Valid() {
			view[i].Status = p.overlayStatus
		}
	}
	return view
}
