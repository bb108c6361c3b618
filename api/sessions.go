package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/events"
	"board-api/gateway"
)

const defaultIdleTTL = 30 * time.Minute

// SessionConfig carries the collaborators every per-user engine is wired
// with. IdleTTL bounds how long an untouched engine survives before the
// sweeper evicts it.
type SessionConfig struct {
	Store     gateway.TaskStore
	Deduper   board.Deduper
	Publisher *events.Publisher
	Activity  *gateway.ActivityRecorder
	Logger    *log.Logger
	IdleTTL   time.Duration
}

type sessionEntry struct {
	eng       *board.Engine
	lastTouch time.Time
}

// Sessions owns one board engine per authenticated user. Engines are created
// lazily on first touch and primed with an initial refresh; a failed initial
// refresh discards the engine so the next request retries instead of serving
// an empty board that never loaded. Engines untouched for IdleTTL are
// reclaimed by the sweeper.
type Sessions struct {
	cfg SessionConfig

	mu      sync.Mutex
	engines map[string]*sessionEntry
}

// NewSessions creates an empty registry.
func NewSessions(cfg SessionConfig) *Sessions {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &Sessions{cfg: cfg, engines: make(map[string]*sessionEntry)}
}

// Engine returns the user's board engine, creating and priming it if needed.
// Every call refreshes the engine's idle clock.
func (s *Sessions) Engine(ctx context.Context, userID string) (*board.Engine, error) {
	s.mu.Lock()
	if ent, ok := s.engines[userID]; ok {
		ent.lastTouch = time.Now()
		s.mu.Unlock()
		return ent.eng, nil
	}
	s.mu.Unlock()

	eng, err := board.NewEngine(userID, board.Config{
		Store:     s.cfg.Store,
		Deduper:   s.cfg.Deduper,
		Publisher: s.cfg.Publisher,
		Activity:  s.cfg.Activity,
		Logger:    s.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.engines[userID]; ok {
		// Lost a creation race; the first one wins.
		existing.lastTouch = time.Now()
		return existing.eng, nil
	}
	s.engines[userID] = &sessionEntry{eng: eng, lastTouch: time.Now()}
	return eng, nil
}

// Len reports how many engines the registry currently holds.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

// Drop removes a user's engine after waiting out its in-flight settlements.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	ent, ok := s.engines[userID]
	delete(s.engines, userID)
	s.mu.Unlock()
	if ok {
		ent.eng.Wait()
	}
}

// Sweep evicts idle engines until ctx is cancelled. Run it on its own
// goroutine next to the server loop.
func (s *Sessions) Sweep(ctx context.Context) {
	interval := s.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evictIdle(now)
		}
	}
}

// evictIdle removes every engine untouched for IdleTTL, waiting out each
// evicted engine's in-flight settlements. Returns how many were evicted.
func (s *Sessions) evictIdle(now time.Time) int {
	s.mu.Lock()
	var evicted []*sessionEntry
	for userID, ent := range s.engines {
		if now.Sub(ent.lastTouch) >= s.cfg.IdleTTL {
			delete(s.engines, userID)
			evicted = append(evicted, ent)
		}
	}
	s.mu.Unlock()

	for _, ent := range evicted {
		ent.eng.Wait()
	}
	if len(evicted) > 0 && s.cfg.Logger != nil {
		s.cfg.Logger.WithFields(log.Fields{"evicted": len(evicted)}).
			Debug("idle board engines reclaimed")
	}
	return len(evicted)
}
