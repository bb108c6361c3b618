package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestPublishReachesSubscriber(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := Subscribe(ctx, client, "user")
	t.Cleanup(func() { _ = sub.Close() })
	// Wait for the subscription before publishing.
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	logger, _ := logtest.NewNullLogger()
	pub := NewPublisher(client, logger)
	pub.Publish(ctx, "user", Event{Type: TypeTaskCompleted, TaskID: "a", Timestamp: 42})

	select {
	case msg := <-sub.Channel():
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		if ev.Type != TypeTaskCompleted || ev.TaskID != "a" || ev.Timestamp != 42 {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishScopedToUserChannel(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := Subscribe(ctx, client, "alice")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewPublisher(client, nil)
	pub.Publish(ctx, "bob", Event{Type: TypeBoardChanged})

	select {
	case msg := <-sub.Channel():
		t.Fatalf("alice received bob's event: %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var pub *Publisher
	pub.Publish(context.Background(), "user", Event{Type: TypeBoardChanged})
	NewPublisher(nil, nil).Publish(context.Background(), "user", Event{Type: TypeBoardChanged})
}
