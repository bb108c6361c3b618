package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/events"
)

type streamFrame struct {
	Event string         `json:"event"`
	Task  string         `json:"taskId,omitempty"`
	Board *boardResponse `json:"board,omitempty"`
}

// streamBoard serves the SSE feed. Each frame carries the event type and a
// fresh working view so clients never have to issue a follow-up fetch.
// Without Redis the feed degrades to a periodic push of the working view.
func streamBoard(sessions *Sessions, auth Authenticator, rc *redis.Client, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may ride the query
		// string instead.
		token := c.QueryParam("token")
		header := c.Request().Header.Get("Authorization")
		if header == "" && token != "" {
			header = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(header)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		eng, err := sessions.Engine(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusServiceUnavailable, "board unavailable, retry shortly")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		// Write an initial comment to ensure headers are flushed to the client.
		if _, err := c.Response().Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		var msgs <-chan *redis.Message
		if rc != nil {
			sub := events.Subscribe(ctx, rc, userID)
			defer sub.Close()
			msgs = sub.Channel()
		}

		writeFrame := func(frame streamFrame) bool {
			data, err := json.Marshal(frame)
			if err != nil {
				return true
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return false
			}
			if _, err := c.Response().Write(data); err != nil {
				return false
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		board := boardPayload(eng)
		if !writeFrame(streamFrame{Event: events.TypeBoardChanged, Board: &board}) {
			return nil
		}

		interval := 30 * time.Second
		if msgs == nil {
			interval = 5 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case msg, open := <-msgs:
				if !open {
					// Subscription dropped, fall back to the ticker.
					msgs = nil
					continue
				}
				var ev events.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warnf("discarding malformed board event: %v", err)
					continue
				}
				frame := streamFrame{Event: ev.Type, Task: ev.TaskID}
				if ev.Type == events.TypeBoardChanged {
					board := boardPayload(eng)
					frame.Board = &board
				}
				if !writeFrame(frame) {
					return nil
				}
			case <-ticker.C:
				if msgs == nil {
					board := boardPayload(eng)
					if !writeFrame(streamFrame{Event: events.TypeBoardChanged, Board: &board}) {
						return nil
					}
					continue
				}
				// Send a comment as a heartbeat to keep the connection alive.
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
