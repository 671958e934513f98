// Package store holds the single current game record and the history of
// games played, serializing every read-modify-write.
package store

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"

	"wordduel-zk/internal/game"
)

// Origin tags who is writing. Authoritative writes come from reconciliation
// and never touch local-only fields.
type Origin uint8

const (
	Local Origin = iota
	Authoritative
)

func (o Origin) String() string {
	if o == Authoritative {
		return "authoritative"
	}
	return "local"
}

// Event is published after every committed change. State is nil when the
// game was cleared.
type Event struct {
	Origin Origin     `json:"origin"`
	State  *GameState `json:"state"`
}

const persistTimeout = 2 * time.Second

type Store struct {
	mu      sync.Mutex
	state   *GameState
	parked  *GameState
	history []HistoryEntry
	// polls counts authoritative commits
	polls   uint64
	p       Persister
	log     *zap.Logger
	now     func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(ctx context.Context, p Persister, log *zap.Logger) (*Store, error) {
	if p == nil {
		p = NewMemoryPersister()
	}
	if log == nil {
		log = zap.NewNop()
	}
	gs, err := p.LoadGame(ctx)
	if err != nil {
		return nil, err
	}
	parked, err := p.LoadParked(ctx)
	if err != nil {
		return nil, err
	}
	hist, err := p.LoadHistory(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{
		state:   gs,
		parked:  parked,
		history: hist,
		p:       p,
		log:     log.Named("store"),
		now:     time.Now,
		subs:    map[int]chan Event{},
	}, nil
}

// Snapshot returns a copy of the current game, or nil.
func (s *Store) Snapshot() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// Update applies fn to a copy of the current game and commits the copy if fn
// returns nil. It fails with game.ErrNoGame when there is no game.
func (s *Store) Update(origin Origin, fn func(*GameState) error) (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, game.ErrNoGame
	}
	next := s.state.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.commit(origin, next)
	return next.Clone(), nil
}

// TryUpdate is Update for background writers: it returns locked=false without
// waiting when another writer holds the store, and commits only when fn
// reports a change.
func (s *Store) TryUpdate(origin Origin, fn func(*GameState) bool) (locked, changed bool) {
	if !s.mu.TryLock() {
		return false, false
	}
	defer s.mu.Unlock()
	if s.state == nil {
		return true, false
	}
	next := s.state.Clone()
	if !fn(next) {
		return true, false
	}
	s.commit(origin, next)
	return true, true
}

// Replace installs a new current game and records it in the history.
func (s *Store) Replace(gs *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(HistoryEntry{GameID: gs.GameID, Role: gs.MyRole, CreatedAt: gs.CreatedAt})
	s.commit(Local, gs.Clone())
}

// Install makes gs the current game without touching the history. Actions use
// it for records the ledger has not confirmed yet.
func (s *Store) Install(gs *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(Local, gs.Clone())
}

// Restore puts back, unchanged, a state captured before a failed action. A
// nil prev clears the current game.
func (s *Store) Restore(prev *GameState) {
	if prev == nil {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(Local, prev.Clone())
}

// Park keeps gs aside without making it current. Actions park a game whose
// creating transaction timed out: it may still land holding the escrow, and
// only this record has the secret to play it.
func (s *Store) Park(gs *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setParked(gs.Clone())
}

// Parked returns a copy of the parked game, or nil.
func (s *Store) Parked() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parked.Clone()
}

// DropParked forgets the parked game if it is gameID.
func (s *Store) DropParked(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parked != nil && s.parked.GameID == gameID {
		s.setParked(nil)
	}
}

// Adopt makes the parked game gameID current and records it in the history.
// It reports false when gameID is not parked.
func (s *Store) Adopt(gameID string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parked == nil || s.parked.GameID != gameID {
		return nil, false
	}
	gs := s.parked
	s.setParked(nil)
	s.record(HistoryEntry{GameID: gs.GameID, Role: gs.MyRole, CreatedAt: gs.CreatedAt})
	s.commit(Local, gs)
	return gs.Clone(), true
}

func (s *Store) setParked(gs *GameState) {
	s.parked = gs
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.p.SaveParked(ctx, gs); err != nil {
		s.log.Warn("persist parked game failed", zap.Error(err))
	}
}

// Polls counts the authoritative changes committed so far. Actions compare it
// across a transaction to see whether reconciliation wrote in the meantime.
func (s *Store) Polls() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Record appends a history entry.
func (s *Store) Record(e HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(e)
}

func (s *Store) record(e HistoryEntry) {
	s.history = append(s.history, e)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.p.AppendHistory(ctx, e); err != nil {
		s.log.Warn("persist history failed", zap.String("game_id", e.GameID), zap.Error(err))
	}
}

// Clear drops the current game. History is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.p.SaveGame(ctx, nil); err != nil {
		s.log.Warn("persist clear failed", zap.Error(err))
	}
	s.publish(Event{Origin: Local})
}

// Subscribe returns a channel of committed changes. Slow readers miss events
// rather than block writers.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// commit must be called with mu held.
func (s *Store) commit(origin Origin, next *GameState) {
	if origin == Authoritative {
		s.polls++
		if s.state != nil && s.state.GameID == next.GameID {
			next.PendingInput = s.state.PendingInput
		}
	}
	next.UpdatedAt = s.now().UTC()
	s.put(origin, next)
}

func (s *Store) put(origin Origin, next *GameState) {
	s.state = next

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.p.SaveGame(ctx, next); err != nil {
		s.log.Warn("persist game failed", zap.String("game_id", next.GameID), zap.Error(err))
	}
	s.publish(Event{Origin: origin, State: next.Clone()})
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Require returns a copy of the current game or game.ErrNoGame.
func (s *Store) Require() (*GameState, error) {
	gs := s.Snapshot()
	if gs == nil {
		return nil, errorsmod.Wrap(game.ErrNoGame, "create or join a game first")
	}
	return gs, nil
}
