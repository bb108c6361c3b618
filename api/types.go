package api

import (
	"board-api/board"
	"board-api/domain"
)

const patchRequestMaxSize = 64 * 1024 // 64 KiB

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type boardResponse struct {
	Columns  []board.Column   `json:"columns"`
	Notices  []board.Notice   `json:"notices,omitempty"`
	Search   string           `json:"search,omitempty"`
	Priority *domain.Priority `json:"priority,omitempty"`
	Sort     board.SortKey    `json:"sort"`
	Dragging string           `json:"dragging,omitempty"`
}

type mutationResponse struct {
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Error          string `json:"error,omitempty"`
}

type dragEndResponse struct {
	Committed bool           `json:"committed"`
	Columns   []board.Column `json:"columns"`
}
