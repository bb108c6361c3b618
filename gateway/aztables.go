package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"board-api/domain"
)

// TableStore persists tasks in an Azure table, partitioned by user ID.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName)}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Priority    string `json:"Priority"`
	CreatedAt   int64  `json:"CreatedAt"`
	// DueDate is unix milliseconds; zero means no due date.
	DueDate   int64  `json:"DueDate"`
	Tags      string `json:"Tags"`
	Checklist string `json:"Checklist"`
}

func entityFromTask(userID string, t domain.Task) (taskEntity, error) {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: userID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt,
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UnixMilli()
	}
	if len(t.Tags) > 0 {
		data, err := json.Marshal(t.Tags)
		if err != nil {
			return taskEntity{}, err
		}
		ent.Tags = string(data)
	}
	if len(t.Checklist) > 0 {
		data, err := json.Marshal(t.Checklist)
		if err != nil {
			return taskEntity{}, err
		}
		ent.Checklist = string(data)
	}
	return ent, nil
}

func taskFromEntity(ent taskEntity) (domain.Task, error) {
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		CreatedAt:   ent.CreatedAt,
	}
	if ent.DueDate != 0 {
		due := time.UnixMilli(ent.DueDate).UTC()
		t.DueDate = &due
	}
	if ent.Tags != "" {
		if err := json.Unmarshal([]byte(ent.Tags), &t.Tags); err != nil {
			return domain.Task{}, err
		}
	}
	if ent.Checklist != "" {
		if err := json.Unmarshal([]byte(ent.Checklist), &t.Checklist); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

// ListTasks retrieves all tasks for the provided user.
func (s *TableStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			task, err := taskFromEntity(ent)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// CreateTask stores a new task and assigns its identity and creation time.
func (s *TableStore) CreateTask(ctx context.Context, userID string, fields domain.Fields) (domain.Task, error) {
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
	ent, err := entityFromTask(userID, task)
	if err != nil {
		return domain.Task{}, err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask reads the addressed entity, applies the patch and writes it
// back. A missing identity fails with ErrTaskNotFound rather than being
// silently upserted.
func (s *TableStore) UpdateTask(ctx context.Context, userID, id string, patch domain.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	resp, err := s.table.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isTableNotFound(err) {
			return ErrTaskNotFound
		}
		return err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return err
	}
	task, err := taskFromEntity(ent)
	if err != nil {
		return err
	}
	patch.Apply(&task)
	updated, err := entityFromTask(userID, task)
	if err != nil {
		return err
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	_, err = s.table.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// DeleteTask removes the entity. Deleting an already-deleted identity is not
// an error.
func (s *TableStore) DeleteTask(ctx context.Context, userID, id string) error {
	if _, err := s.table.DeleteEntity(ctx, userID, id, nil); err != nil {
		if isTableNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func isTableNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
