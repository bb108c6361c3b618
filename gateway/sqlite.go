package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"board-api/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	user_id TEXT NOT NULL,
	id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	due_date INTEGER,
	tags TEXT NOT NULL DEFAULT '',
	checklist TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
`

// SQLiteStore is the local development backend. It implements the same
// TaskStore contract as the table-backed store so the engine cannot tell
// them apart.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, status, priority, created_at, due_date, tags, checklist
		 FROM tasks WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, userID string, fields domain.Fields) (domain.Task, error) {
	if err := fields.Validate(); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:          uuid.NewString(),
		Title:       fields.Title,
		Description: fields.Description,
		Status:      fields.Status,
		Priority:    fields.Priority,
		CreatedAt:   time.Now().UnixMilli(),
		DueDate:     fields.DueDate,
		Tags:        fields.Tags,
		Checklist:   fields.Checklist,
	}
	tags, checklist, err := encodeTaskColumns(task)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, id, title, description, status, priority, created_at, due_date, tags, checklist)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		task.CreatedAt, dueMillis(task.DueDate), tags, checklist)
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, userID, id string, patch domain.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, title, description, status, priority, created_at, due_date, tags, checklist
		 FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrTaskNotFound
		}
		return err
	}

	patch.Apply(&task)
	tags, checklist, err := encodeTaskColumns(task)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?, tags = ?, checklist = ?
		 WHERE user_id = ? AND id = ?`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		dueMillis(task.DueDate), tags, checklist, userID, id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task      domain.Task
		status    string
		priority  string
		due       sql.NullInt64
		tags      string
		checklist string
	)
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &priority,
		&task.CreatedAt, &due, &tags, &checklist); err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.Status(status)
	task.Priority = domain.Priority(priority)
	if due.Valid && due.Int64 != 0 {
		d := time.UnixMilli(due.Int64).UTC()
		task.DueDate = &d
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &task.Tags); err != nil {
			return domain.Task{}, err
		}
	}
	if checklist != "" {
		if err := json.Unmarshal([]byte(checklist), &task.Checklist); err != nil {
			return domain.Task{}, err
		}
	}
	return task, nil
}

func encodeTaskColumns(t domain.Task) (tags, checklist string, err error) {
	if len(t.Tags) > 0 {
		data, err := json.Marshal(t.Tags)
		if err != nil {
			return "", "", err
		}
		tags = string(data)
	}
	if len(t.Checklist) > 0 {
		data, err := json.Marshal(t.Checklist)
		if err != nil {
			return "", "", err
		}
		checklist = string(data)
	}
	return tags, checklist, nil
}

func dueMillis(due *time.Time) any {
	if due == nil {
		return nil
	}
	return due.UnixMilli()
}
