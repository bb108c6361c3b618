package board

import (
	"fmt"
	"sort"
	"strings"

	"board-api/domain"
)

// SortKey selects the ordering applied before grouping.
type SortKey string

const (
	SortNewest   SortKey = "newest"
	SortPriority SortKey = "priority"
	SortDueDate  SortKey = "due_date"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortNewest, SortPriority, SortDueDate:
		return true
	}
	return false
}

// ParseSortKey converts raw input into a SortKey.
func ParseSortKey(raw string) (SortKey, error) {
	k := SortKey(raw)
	if !k.Valid() {
		return "", fmt.Errorf("unknown sort key %q", raw)
	}
	return k, nil
}

// ViewOptions is the filter/sort state applied to the working view.
type ViewOptions struct {
	Search   string
	Priority *domain.Priority
	Sort     SortKey
}

// Column is one rendered board column.
type Column struct {
	Status domain.Status `json:"status"`
	Tasks  []domain.Task `json:"tasks"`
}

// Matches reports whether the task matches the search text: a
// case-insensitive substring of the title or of any tag.
func Matches(t domain.Task, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func sortTasks(tasks []domain.Task, key SortKey) {
	switch key {
	case SortPriority:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
		})
	case SortDueDate:
		// Undated tasks sort after all dated ones, keeping their original
		// relative order among themselves.
		sort.SliceStable(tasks, func(i, j int) bool {
			di, dj := tasks[i].DueDate, tasks[j].DueDate
			switch {
			case di == nil:
				return false
			case dj == nil:
				return true
			default:
				return di.Before(*dj)
			}
		})
	default: // SortNewest
		sort.SliceStable(tasks, func(i, j int) bool {
			ci, cj := tasks[i].CreatedAt, tasks[j].CreatedAt
			switch {
			case ci == 0:
				return false
			case cj == 0:
				return true
			default:
				return ci > cj
			}
		})
	}
}

// BuildColumns is the pure filter/sort/group stage: deterministic for a
// given (working view, options) pair and free of side effects. A task whose
// status matches no known column is dropped rather than failing the render.
func BuildColumns(view []domain.Task, opts ViewOptions) []Column {
	filtered := make([]domain.Task, 0, len(view))
	for _, t := range view {
		if !Matches(t, opts.Search) {
			continue
		}
		if opts.Priority != nil && t.Priority != *opts.Priority {
			continue
		}
		filtered = append(filtered, t)
	}

	sortTasks(filtered, opts.Sort)

	columns := make([]Column, len(domain.Statuses))
	for i, status := range domain.Statuses {
		columns[i] = Column{Status: status, Tasks: []domain.Task{}}
	}
	for _, t := range filtered {
		for i := range columns {
			if columns[i].Status == t.Status {
				columns[i].Tasks = append(columns[i].Tasks, t)
				break
			}
		}
	}
	return columns
}
