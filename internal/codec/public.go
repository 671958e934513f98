package codec

import (
	"fmt"
	"math/big"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

const FieldSize = 32

// Guess-result public input layout, one 32-byte big-endian field each:
//
//	[0]      commitment of the prover's secret
//	[1..5]   guess letters
//	[6..10]  per-letter results
const GuessPublicSize = (1 + 2*game.WordLength) * FieldSize

type GuessPublic struct {
	Commitment *big.Int
	Guess      [game.WordLength]uint8
	Results    game.Results
}

func (g GuessPublic) Encode() []byte {
	out := make([]byte, 0, GuessPublicSize)
	out = append(out, merkle.FieldBytes(g.Commitment)...)
	for _, c := range g.Guess {
		out = append(out, merkle.FieldBytes(big.NewInt(int64(c)))...)
	}
	for _, r := range g.Results {
		out = append(out, merkle.FieldBytes(big.NewInt(int64(r)))...)
	}
	return out
}

func DecodeGuessPublic(b []byte) (GuessPublic, error) {
	var g GuessPublic
	if len(b) != GuessPublicSize {
		return g, fmt.Errorf("codec: guess public inputs are %d bytes, want %d", len(b), GuessPublicSize)
	}
	g.Commitment = new(big.Int).SetBytes(b[:FieldSize])
	for i := 0; i < game.WordLength; i++ {
		v, err := smallField(b, 1+i, 255)
		if err != nil {
			return g, err
		}
		g.Guess[i] = uint8(v)
	}
	for i := 0; i < game.WordLength; i++ {
		v, err := smallField(b, 1+game.WordLength+i, uint64(game.Correct))
		if err != nil {
			return g, err
		}
		g.Results[i] = game.Outcome(v)
	}
	return g, nil
}

func smallField(b []byte, slot int, max uint64) (uint64, error) {
	f := new(big.Int).SetBytes(b[slot*FieldSize : (slot+1)*FieldSize])
	if !f.IsUint64() || f.Uint64() > max {
		return 0, fmt.Errorf("codec: public input %d out of range", slot)
	}
	return f.Uint64(), nil
}

// Word-commit public input layout: [commitment, dictionary root].
const CommitPublicSize = 2 * FieldSize

type CommitPublic struct {
	Commitment *big.Int
	Root       *big.Int
}

func (c CommitPublic) Encode() []byte {
	out := make([]byte, 0, CommitPublicSize)
	out = append(out, merkle.FieldBytes(c.Commitment)...)
	return append(out, merkle.FieldBytes(c.Root)...)
}

func DecodeCommitPublic(b []byte) (CommitPublic, error) {
	if len(b) != CommitPublicSize {
		return CommitPublic{}, fmt.Errorf("codec: commit public inputs are %d bytes, want %d", len(b), CommitPublicSize)
	}
	return CommitPublic{
		Commitment: new(big.Int).SetBytes(b[:FieldSize]),
		Root:       new(big.Int).SetBytes(b[FieldSize:]),
	}, nil
}
