package board

import (
	"testing"
	"time"

	"board-api/domain"
)

func taskIDs(tasks []domain.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func assertOrder(t *testing.T, got []domain.Task, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks %v, got %v", len(want), want, taskIDs(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %v", i, id, taskIDs(got))
		}
	}
}

func columnFor(t *testing.T, cols []Column, status domain.Status) Column {
	t.Helper()
	for _, c := range cols {
		if c.Status == status {
			return c
		}
	}
	t.Fatalf("no column for status %q", status)
	return Column{}
}

func TestPrioritySortIsStable(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityLow},
		{ID: "t2", Title: "b", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
		{ID: "t3", Title: "c", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "t4", Title: "d", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
	}
	cols := BuildColumns(tasks, ViewOptions{Sort: SortPriority})
	todo := columnFor(t, cols, domain.StatusTodo)
	assertOrder(t, todo.Tasks, "t2", "t4", "t3", "t1")
}

func TestSearchMatchesTitleAndTagsCaseInsensitive(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", Title: "Revisión lunes", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "t2", Title: "Cierre semanal", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "t3", Title: "Otra cosa", Status: domain.StatusTodo, Priority: domain.PriorityMedium, Tags: []string{"lunes-check"}},
	}
	cols := BuildColumns(tasks, ViewOptions{Search: "lunes", Sort: SortNewest})
	todo := columnFor(t, cols, domain.StatusTodo)
	assertOrder(t, todo.Tasks, "t1", "t3")

	cols = BuildColumns(tasks, ViewOptions{Search: "LUNES", Sort: SortNewest})
	todo = columnFor(t, cols, domain.StatusTodo)
	assertOrder(t, todo.Tasks, "t1", "t3")
}

func TestDueDateSortPutsUndatedLastInOriginalOrder(t *testing.T) {
	d1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: "u1", Title: "sin fecha 1", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "d1", Title: "later", Status: domain.StatusTodo, Priority: domain.PriorityMedium, DueDate: &d1},
		{ID: "u2", Title: "sin fecha 2", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "d2", Title: "sooner", Status: domain.StatusTodo, Priority: domain.PriorityMedium, DueDate: &d2},
	}
	cols := BuildColumns(tasks, ViewOptions{Sort: SortDueDate})
	todo := columnFor(t, cols, domain.StatusTodo)
	assertOrder(t, todo.Tasks, "d2", "d1", "u1", "u2")
}

func TestNewestSortPutsMissingTimestampsLast(t *testing.T) {
	tasks := []domain.Task{
		{ID: "old", Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityMedium, CreatedAt: 100},
		{ID: "none", Title: "b", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "new", Title: "c", Status: domain.StatusTodo, Priority: domain.PriorityMedium, CreatedAt: 200},
	}
	cols := BuildColumns(tasks, ViewOptions{Sort: SortNewest})
	todo := columnFor(t, cols, domain.StatusTodo)
	assertOrder(t, todo.Tasks, "new", "old", "none")
}

func TestPriorityFilter(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityHigh},
		{ID: "t2", Title: "b", Status: domain.StatusDone, Priority: domain.PriorityLow},
		{ID: "t3", Title: "c", Status: domain.StatusTodo, Priority: domain.PriorityLow},
	}
	low := domain.PriorityLow
	cols := BuildColumns(tasks, ViewOptions{Priority: &low, Sort: SortNewest})
	assertOrder(t, columnFor(t, cols, domain.StatusTodo).Tasks, "t3")
	assertOrder(t, columnFor(t, cols, domain.StatusDone).Tasks, "t2")
	if got := columnFor(t, cols, domain.StatusInProgress).Tasks; len(got) != 0 {
		t.Fatalf("expected empty in_progress column, got %v", taskIDs(got))
	}
}

func TestUnknownStatusIsDroppedNotRendered(t *testing.T) {
	tasks := []domain.Task{
		{ID: "ok", Title: "a", Status: domain.StatusTodo, Priority: domain.PriorityMedium},
		{ID: "bad", Title: "b", Status: "limbo", Priority: domain.PriorityMedium},
	}
	cols := BuildColumns(tasks, ViewOptions{Sort: SortNewest})
	total := 0
	for _, c := range cols {
		total += len(c.Tasks)
	}
	if total != 1 {
		t.Fatalf("expected invalid-status task to be dropped, got %d rendered", total)
	}
}

func TestColumnsAlwaysPresentInFixedOrder(t *testing.T) {
	cols := BuildColumns(nil, ViewOptions{Sort: SortNewest})
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	for i, status := range domain.Statuses {
		if cols[i].Status != status {
			t.Fatalf("column %d: expected %q, got %q", i, status, cols[i].Status)
		}
		if cols[i].Tasks == nil {
			t.Fatalf("column %q has nil task slice", status)
		}
	}
}

func TestParseSortKey(t *testing.T) {
	for _, raw := range []string{"newest", "priority", "due_date"} {
		if _, err := ParseSortKey(raw); err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	if _, err := ParseSortKey("alphabetical"); err == nil {
		t.Fatal("expected error for unknown sort key")
	}
}
