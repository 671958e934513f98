// Package signer holds ed25519 keys and signs ledger transactions with them.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/ledger"
)

// Approver is asked before every signature. Returning an error refuses it,
// the way a wallet prompt would.
type Approver func(ctx context.Context, tx ledger.Tx) error

// AutoApprove signs without asking.
func AutoApprove(context.Context, ledger.Tx) error { return nil }

type KeySigner struct {
	priv    ed25519.PrivateKey
	approve Approver
}

var _ ledger.Signer = (*KeySigner)(nil)

func New(priv ed25519.PrivateKey, approve Approver) *KeySigner {
	if approve == nil {
		approve = AutoApprove
	}
	return &KeySigner{priv: priv, approve: approve}
}

func Generate(approve Approver) (*KeySigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return New(priv, approve), nil
}

func (s *KeySigner) Address() string { return ledger.Address(s.PublicKey()) }

func (s *KeySigner) PublicKey() ed25519.PublicKey { return s.priv.Public().(ed25519.PublicKey) }

func (s *KeySigner) PrivateKey() ed25519.PrivateKey { return s.priv }

func (s *KeySigner) Sign(ctx context.Context, tx ledger.Tx) (ledger.SignedTx, error) {
	if tx.Source != s.Address() {
		return ledger.SignedTx{}, errorsmod.Wrapf(game.ErrSigningRejected, "source %s is not this key", tx.Source)
	}
	if err := s.approve(ctx, tx); err != nil {
		return ledger.SignedTx{}, errorsmod.Wrap(game.ErrSigningRejected, err.Error())
	}
	return ledger.SignedTx{Tx: tx, Signature: ed25519.Sign(s.priv, tx.SignBytes())}, nil
}

type keyFile struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// SaveKeyFile writes priv's seed as JSON, readable only by the owner.
func SaveKeyFile(path string, priv ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	kf := keyFile{
		Address: ledger.Address(priv.Public().(ed25519.PublicKey)),
		Seed:    hex.EncodeToString(priv.Seed()),
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func LoadKeyFile(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	seed, err := hex.DecodeString(kf.Seed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%s: bad seed", path)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if kf.Address != "" && kf.Address != ledger.Address(priv.Public().(ed25519.PublicKey)) {
		return nil, fmt.Errorf("%s: address does not match seed", path)
	}
	return priv, nil
}
