package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is one ephemeral key bound to one game.
type Record struct {
	GameID     string    `json:"gameId"`
	Player     string    `json:"player,omitempty"`
	PublicKey  string    `json:"publicKey"`
	PrivateKey []byte    `json:"privateKey"`
	Funded     bool      `json:"funded"`
	Registered bool      `json:"registered"`
	CreatedAt  time.Time `json:"createdAt"`
}

// KeyStore keeps session key records for the lifetime of a client session.
type KeyStore interface {
	Load(ctx context.Context, gameID string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, gameID string) error
}

// MemoryKeyStore lives as long as the process.
type MemoryKeyStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{recs: map[string]Record{}}
}

func (s *MemoryKeyStore) Load(_ context.Context, gameID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[gameID]
	return r, ok, nil
}

func (s *MemoryKeyStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.recs[rec.GameID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryKeyStore) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	delete(s.recs, gameID)
	s.mu.Unlock()
	return nil
}

// RedisKeyStore keeps records under "session:<gameID>" with a TTL, so keys
// outlive a client restart but not the session.
type RedisKeyStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisKeyStore(rdb *redis.Client, ttl time.Duration) *RedisKeyStore {
	return &RedisKeyStore{rdb: rdb, prefix: "session:", ttl: ttl}
}

func (s *RedisKeyStore) Load(ctx context.Context, gameID string) (Record, bool, error) {
	b, err := s.rdb.Get(ctx, s.prefix+gameID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *RedisKeyStore) Save(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+rec.GameID, b, s.ttl).Err()
}

func (s *RedisKeyStore) Delete(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, s.prefix+gameID).Err()
}
