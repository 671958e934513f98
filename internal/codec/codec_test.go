package codec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

func TestGuessPublicLayout(t *testing.T) {
	g := GuessPublic{
		Commitment: big.NewInt(0xabcdef),
		Guess:      [game.WordLength]uint8{'h', 'o', 'r', 's', 'e'},
		Results:    game.Results{game.Correct, game.Correct, game.Absent, game.Correct, game.Correct},
	}
	b := g.Encode()
	require.Len(t, b, GuessPublicSize)
	require.Equal(t, byte(0xef), b[FieldSize-1])
	require.Equal(t, byte('h'), b[2*FieldSize-1])
	require.Equal(t, byte(game.Absent), b[(1+game.WordLength+2)*FieldSize+FieldSize-1])

	back, err := DecodeGuessPublic(b)
	require.NoError(t, err)
	require.Equal(t, g.Guess, back.Guess)
	require.Equal(t, g.Results, back.Results)
	require.Zero(t, g.Commitment.Cmp(back.Commitment))
}

func TestDecodeGuessPublicRejects(t *testing.T) {
	_, err := DecodeGuessPublic(make([]byte, 10))
	require.Error(t, err)

	b := GuessPublic{Commitment: big.NewInt(1)}.Encode()
	b[GuessPublicSize-1] = 3 // not an outcome
	_, err = DecodeGuessPublic(b)
	require.Error(t, err)
}

func TestMembershipProofJSON(t *testing.T) {
	words := []game.Word{{'a', 'p', 'p', 'l', 'e'}, {'h', 'o', 'u', 's', 'e'}, {'c', 'r', 'a', 'n', 'e'}}
	d, err := merkle.NewDictionary(words, merkle.Keccak)
	require.NoError(t, err)
	p, err := d.Prove(words[2])
	require.NoError(t, err)

	m := FromMerkle(p)
	require.Equal(t, []int{0, 1}, m.PathIndices)
	back, err := m.ToMerkle()
	require.NoError(t, err)
	require.True(t, d.Verify(back))

	m.PathIndices[0] = 2
	_, err = m.ToMerkle()
	require.Error(t, err)
}
