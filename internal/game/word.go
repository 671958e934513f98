package game

import (
	"math/big"
	"strings"

	errorsmod "cosmossdk.io/errors"
)

const (
	WordLength = 5
	MaxGuesses = 6
	MaxTurns   = 2*MaxGuesses + 1 // 13: twelve guessing turns plus the closing verify
)

// Word is a validated lowercase 5-letter word.
type Word [WordLength]byte

func ParseWord(s string) (Word, error) {
	var w Word
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != WordLength {
		return w, errorsmod.Wrapf(ErrInvalidWord, "%q must be %d letters", s, WordLength)
	}
	for i := 0; i < WordLength; i++ {
		c := s[i]
		if c < 'a' || c > 'z' {
			return w, errorsmod.Wrapf(ErrInvalidWord, "%q has non a-z character at %d", s, i)
		}
		w[i] = c
	}
	return w, nil
}

// WordFromCodes rebuilds a word from raw letter codes, such as those stored
// with a secret.
func WordFromCodes(codes []uint8) (Word, error) {
	return ParseWord(string(codes))
}

func (w Word) String() string { return string(w[:]) }

func (w Word) LetterCodes() [WordLength]uint8 {
	var out [WordLength]uint8
	copy(out[:], w[:])
	return out
}

// Pack encodes the word as l1*256^4 + l2*256^3 + ... + l5, the dictionary leaf value.
func (w Word) Pack() *big.Int {
	v := new(big.Int)
	for _, c := range w {
		v.Lsh(v, 8)
		v.Or(v, big.NewInt(int64(c)))
	}
	return v
}

// Unpack is the inverse of Pack.
func Unpack(v *big.Int) (Word, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 8*WordLength {
		return Word{}, errorsmod.Wrap(ErrInvalidWord, "leaf value out of range")
	}
	b := make([]byte, WordLength)
	v.FillBytes(b)
	return ParseWord(string(b))
}
