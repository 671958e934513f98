// Package commit binds a secret word and a random salt into a hiding value.
//
// The commitment is MiMC over BN254 applied to [salt, l1..l5], the same hash the
// guess-result and word-commit circuits recompute, so a proof over the private
// word can be checked against the published commitment alone.
package commit

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

// NewSalt draws a uniform 64-bit salt.
func NewSalt() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func Commit(salt uint64, letterCodes []uint8) (*big.Int, error) {
	if len(letterCodes) != game.WordLength {
		return nil, errorsmod.Wrapf(game.ErrInvalidWord, "need %d letter codes, got %d", game.WordLength, len(letterCodes))
	}
	elems := make([]*big.Int, 0, 1+game.WordLength)
	elems = append(elems, new(big.Int).SetUint64(salt))
	for _, c := range letterCodes {
		elems = append(elems, big.NewInt(int64(c)))
	}
	return merkle.HashMiMC(elems...), nil
}

// New picks a fresh salt and commits to w.
func New(w game.Word) (codec.Secret, error) {
	salt, err := NewSalt()
	if err != nil {
		return codec.Secret{}, err
	}
	return WithSalt(w, salt)
}

func WithSalt(w game.Word, salt uint64) (codec.Secret, error) {
	letters := w.LetterCodes()
	c, err := Commit(salt, letters[:])
	if err != nil {
		return codec.Secret{}, err
	}
	return codec.Secret{
		Word:       w.String(),
		Letters:    letters,
		Salt:       salt,
		Commitment: merkle.Hex(c),
	}, nil
}

// Open reports whether secret opens its own commitment.
func Open(secret codec.Secret) bool {
	want, err := secret.CommitmentValue()
	if err != nil {
		return false
	}
	got, err := Commit(secret.Salt, secret.Letters[:])
	return err == nil && got.Cmp(want) == 0
}
