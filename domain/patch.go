package domain

import (
	"fmt"
	"time"
)

// Patch is a partial update addressed to one task. Nil fields are left
// untouched; slice fields replace the previous value wholesale. Clearing the
// due date is explicit so it cannot be confused with "not supplied".
type Patch struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
	Tags         *[]string
	Checklist    *[]ChecklistItem
}

// StatusPatch builds the single-field patch emitted by a drag commit.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && !p.ClearDueDate &&
		p.Tags == nil && p.Checklist == nil
}

// Validate rejects values outside the known enums before they reach the cache
// or the store.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", string(*p.Status))
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", string(*p.Priority))
	}
	if p.Title != nil && *p.Title == "" {
		return errEmptyTitle
	}
	if p.DueDate != nil && p.ClearDueDate {
		return fmt.Errorf("due date cannot be both set and cleared")
	}
	return nil
}

// Apply writes the patch onto t. Slice values are copied so the patched task
// does not alias caller-owned memory.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), *p.Tags...)
	}
	if p.Checklist != nil {
		t.Checklist = append([]ChecklistItem(nil), *p.Checklist...)
	}
}
