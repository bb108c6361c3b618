package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

// ActivityEntry describes one settled board action for the dashboard's
// activity feed.
type ActivityEntry struct {
	UserID    string `json:"userId"`
	TaskID    string `json:"taskId"`
	Action    string `json:"action"`
	Status    string `json:"status,omitempty"`
	Succeeded bool   `json:"succeeded"`
	Timestamp int64  `json:"timestamp"`
}

// ActivityRecorder publishes activity entries to a storage queue consumed by
// the rest of the dashboard. Recording is best effort and never blocks the
// caller on failure semantics; errors are logged and dropped.
type ActivityRecorder struct {
	queue  *azqueue.QueueClient
	logger *log.Logger
}

// NewActivityRecorder creates a recorder for the named queue.
func NewActivityRecorder(connStr, queueName string, logger *log.Logger) (*ActivityRecorder, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &ActivityRecorder{queue: q, logger: logger}, nil
}

// Record enqueues one entry. A nil recorder is a no-op so wiring stays
// optional in local setups.
func (r *ActivityRecorder) Record(ctx context.Context, entry ActivityEntry) {
	if r == nil || r.queue == nil {
		return
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if _, err := r.queue.EnqueueMessage(ctx, string(data), nil); err != nil && r.logger != nil {
		r.logger.WithFields(log.Fields{
			"user":   entry.UserID,
			"task":   entry.TaskID,
			"action": entry.Action,
		}).Errorf("activity enqueue failed: %v", err)
	}
}
