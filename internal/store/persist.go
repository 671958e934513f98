package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Persister stores one current game, one parked game awaiting confirmation
// and an append-only history.
type Persister interface {
	LoadGame(ctx context.Context) (*GameState, error)
	// SaveGame with nil removes the current game.
	SaveGame(ctx context.Context, gs *GameState) error
	LoadParked(ctx context.Context) (*GameState, error)
	SaveParked(ctx context.Context, gs *GameState) error
	LoadHistory(ctx context.Context) ([]HistoryEntry, error)
	AppendHistory(ctx context.Context, e HistoryEntry) error
}

type MemoryPersister struct {
	mu      sync.Mutex
	game    *GameState
	parked  *GameState
	history []HistoryEntry
}

func NewMemoryPersister() *MemoryPersister { return &MemoryPersister{} }

func (m *MemoryPersister) LoadGame(context.Context) (*GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.game.Clone(), nil
}

func (m *MemoryPersister) SaveGame(_ context.Context, gs *GameState) error {
	m.mu.Lock()
	m.game = gs.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) LoadParked(context.Context) (*GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parked.Clone(), nil
}

func (m *MemoryPersister) SaveParked(_ context.Context, gs *GameState) error {
	m.mu.Lock()
	m.parked = gs.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) LoadHistory(context.Context) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history...), nil
}

func (m *MemoryPersister) AppendHistory(_ context.Context, e HistoryEntry) error {
	m.mu.Lock()
	m.history = append(m.history, e)
	m.mu.Unlock()
	return nil
}

// FilePersister keeps game.json, parked.json and history.json in a directory.
type FilePersister struct {
	dir string
	mu  sync.Mutex
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FilePersister{dir: dir}, nil
}

func (f *FilePersister) gamePath() string    { return filepath.Join(f.dir, "game.json") }
func (f *FilePersister) parkedPath() string  { return filepath.Join(f.dir, "parked.json") }
func (f *FilePersister) historyPath() string { return filepath.Join(f.dir, "history.json") }

func (f *FilePersister) LoadGame(context.Context) (*GameState, error) {
	return f.loadState(f.gamePath())
}

func (f *FilePersister) SaveGame(_ context.Context, gs *GameState) error {
	return f.saveState(f.gamePath(), gs)
}

func (f *FilePersister) LoadParked(context.Context) (*GameState, error) {
	return f.loadState(f.parkedPath())
}

func (f *FilePersister) SaveParked(_ context.Context, gs *GameState) error {
	return f.saveState(f.parkedPath(), gs)
}

func (f *FilePersister) loadState(path string) (*GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var gs GameState
	if err := loadJSON(path, &gs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &gs, nil
}

// saveState with nil removes the file.
func (f *FilePersister) saveState(path string, gs *GameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gs == nil {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return saveJSON(path, gs)
}

func (f *FilePersister) LoadHistory(context.Context) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadHistory()
}

func (f *FilePersister) loadHistory() ([]HistoryEntry, error) {
	var h []HistoryEntry
	if err := loadJSON(f.historyPath(), &h); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return h, nil
}

func (f *FilePersister) AppendHistory(_ context.Context, e HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.loadHistory()
	if err != nil {
		return err
	}
	return saveJSON(f.historyPath(), append(h, e))
}

// saveJSON writes through a temp file so a crash never leaves half a record.
func saveJSON(path string, v any) error {
	tmp := path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(fh)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadJSON(path string, v any) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return json.NewDecoder(fh).Decode(v)
}

// RedisPersister keeps the game under <prefix>game, the parked game under
// <prefix>parked and the history as a list under <prefix>history.
type RedisPersister struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPersister(rdb *redis.Client, prefix string) *RedisPersister {
	if prefix == "" {
		prefix = "wordduel:"
	}
	return &RedisPersister{rdb: rdb, prefix: prefix}
}

func (r *RedisPersister) LoadGame(ctx context.Context) (*GameState, error) {
	return r.loadState(ctx, r.prefix+"game")
}

func (r *RedisPersister) SaveGame(ctx context.Context, gs *GameState) error {
	return r.saveState(ctx, r.prefix+"game", gs)
}

func (r *RedisPersister) LoadParked(ctx context.Context) (*GameState, error) {
	return r.loadState(ctx, r.prefix+"parked")
}

func (r *RedisPersister) SaveParked(ctx context.Context, gs *GameState) error {
	return r.saveState(ctx, r.prefix+"parked", gs)
}

func (r *RedisPersister) loadState(ctx context.Context, key string) (*GameState, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var gs GameState
	if err := json.Unmarshal(b, &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

func (r *RedisPersister) saveState(ctx context.Context, key string, gs *GameState) error {
	if gs == nil {
		return r.rdb.Del(ctx, key).Err()
	}
	b, err := json.Marshal(gs)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, b, 0).Err()
}

func (r *RedisPersister) LoadHistory(ctx context.Context) ([]HistoryEntry, error) {
	items, err := r.rdb.LRange(ctx, r.prefix+"history", 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(items))
	for _, it := range items {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(it), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RedisPersister) AppendHistory(ctx context.Context, e HistoryEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, r.prefix+"history", b).Err()
}
