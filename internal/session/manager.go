// Package session delegates per-game signing to an ephemeral key so turns do
// not need a wallet approval each.
//
// Lifecycle: Init creates or restores the key, Fund moves fee money to it from
// the wallet (the one approval), Register binds it on the ledger to the player
// for one game, Signer hands out the scoped capability, and Reclaim merges the
// remaining balance back to the player and forgets the key.
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
	"wordduel-zk/internal/signer"
)

var ErrNoSession = errors.New("session: no key for game")

type Manager struct {
	mu     sync.Mutex
	store  KeyStore
	sender *ledger.Sender
	log    *zap.Logger
	now    func() time.Time
}

func NewManager(store KeyStore, sender *ledger.Sender, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, sender: sender, log: log.Named("session"), now: time.Now}
}

// Init returns the key record for gameID, generating one if none is stored.
func (m *Manager) Init(ctx context.Context, gameID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok, err := m.store.Load(ctx, gameID); err != nil || ok {
		return rec, err
	}
	k, err := signer.Generate(nil)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		GameID:     gameID,
		PublicKey:  k.Address(),
		PrivateKey: k.PrivateKey(),
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	m.log.Info("session key created", zap.String("game_id", gameID), zap.String("session_key", rec.PublicKey))
	return rec, nil
}

func (m *Manager) Get(ctx context.Context, gameID string) (Record, bool, error) {
	return m.store.Load(ctx, gameID)
}

// Fund transfers amount from the wallet to the session key. It is a no-op once
// the record is marked funded.
func (m *Manager) Fund(ctx context.Context, gameID string, wallet ledger.Signer, amount int64) error {
	rec, err := m.mustLoad(ctx, gameID)
	if err != nil {
		return err
	}
	if rec.Funded || amount <= 0 {
		return nil
	}
	if _, err := m.sender.Send(ctx, wallet, ledger.MethodTransfer, "", ledger.TransferArgs{To: rec.PublicKey, Amount: amount}); err != nil {
		return err
	}
	return m.update(ctx, gameID, func(r *Record) { r.Funded = true })
}

// Register has the session key bind itself to player on the ledger.
func (m *Manager) Register(ctx context.Context, gameID, player string) error {
	rec, err := m.mustLoad(ctx, gameID)
	if err != nil {
		return err
	}
	if rec.Registered && rec.Player == player {
		return nil
	}
	key := signer.New(ed25519.PrivateKey(rec.PrivateKey), nil)
	if _, err := m.sender.Send(ctx, key, ledger.MethodRegisterSessionKey, gameID, ledger.RegisterSessionKeyArgs{Player: player}); err != nil {
		return err
	}
	m.log.Info("session key registered", zap.String("game_id", gameID), zap.String("player", player))
	return m.update(ctx, gameID, func(r *Record) {
		r.Registered = true
		r.Player = player
	})
}

// Signer returns a signer that only signs game transactions for gameID. It
// fails with ErrNoSession until the key is registered.
func (m *Manager) Signer(ctx context.Context, gameID string) (ledger.Signer, error) {
	rec, err := m.mustLoad(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !rec.Registered {
		return nil, errorsmod.Wrap(ErrNoSession, "key not registered")
	}
	return &scoped{gameID: gameID, key: signer.New(ed25519.PrivateKey(rec.PrivateKey), nil)}, nil
}

// Reclaim merges the session account back into player and drops the record.
func (m *Manager) Reclaim(ctx context.Context, gameID, player string) error {
	rec, ok, err := m.store.Load(ctx, gameID)
	if err != nil || !ok {
		return err
	}
	if rec.Funded {
		key := signer.New(ed25519.PrivateKey(rec.PrivateKey), nil)
		if _, err := m.sender.Send(ctx, key, ledger.MethodMergeAccount, "", ledger.MergeAccountArgs{Into: player}); err != nil {
			return err
		}
	}
	m.log.Info("session key reclaimed", zap.String("game_id", gameID))
	return m.store.Delete(ctx, gameID)
}

// Clear forgets the key without touching the ledger.
func (m *Manager) Clear(ctx context.Context, gameID string) error {
	return m.store.Delete(ctx, gameID)
}

func (m *Manager) mustLoad(ctx context.Context, gameID string) (Record, error) {
	rec, ok, err := m.store.Load(ctx, gameID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, errorsmod.Wrap(ErrNoSession, gameID)
	}
	return rec, nil
}

func (m *Manager) update(ctx context.Context, gameID string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.mustLoad(ctx, gameID)
	if err != nil {
		return err
	}
	fn(&rec)
	return m.store.Save(ctx, rec)
}

type scoped struct {
	gameID string
	key    *signer.KeySigner
}

func (s *scoped) Address() string { return s.key.Address() }

func (s *scoped) Sign(ctx context.Context, tx ledger.Tx) (ledger.SignedTx, error) {
	if !tx.Method.GameScoped() || tx.GameID != s.gameID {
		return ledger.SignedTx{}, errorsmod.Wrapf(game.ErrSigningRejected, "session key for %s cannot sign %s on %q", s.gameID, tx.Method, tx.GameID)
	}
	return s.key.Sign(ctx, tx)
}
