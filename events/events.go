// Package events publishes board change notifications over Redis pub/sub.
// The SSE stream and any other dashboard surface subscribe to a per-user
// channel; publishing is fire-and-forget so the engine's gesture paths are
// never blocked by a slow broker.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// TypeBoardChanged signals that the user's working view should be refetched.
	TypeBoardChanged = "board-changed"
	// TypeTaskCompleted is the one-shot celebration event emitted when a task
	// lands in the done column. Cosmetic only.
	TypeTaskCompleted = "task-completed"

	channelPrefix = "board-events:"
)

// Event is the payload published on a user's board channel.
type Event struct {
	Type      string `json:"type"`
	TaskID    string `json:"taskId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Channel returns the pub/sub channel name for a user.
func Channel(userID string) string {
	return channelPrefix + userID
}

// Publisher sends board events to Redis. A nil Publisher drops everything,
// which keeps local setups without Redis working.
type Publisher struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewPublisher creates a Publisher over the given Redis client.
func NewPublisher(client *redis.Client, logger *log.Logger) *Publisher {
	return &Publisher{redis: client, logger: logger}
}

// Publish sends ev on the user's channel. Failures are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, userID string, ev Event) {
	if p == nil || p.redis == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, Channel(userID), payload).Err(); err != nil && p.logger != nil {
		p.logger.WithFields(log.Fields{"user": userID, "type": ev.Type}).
			Errorf("publish board event failed: %v", err)
	}
}

// Subscribe opens a pub/sub subscription on the user's channel. The caller
// owns the returned subscription and must close it.
func Subscribe(ctx context.Context, client *redis.Client, userID string) *redis.PubSub {
	return client.Subscribe(ctx, Channel(userID))
}
