package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"wordduel-zk/internal/game"
)

// GuessResultCircuit proves that Results is the score of Guess against the word
// behind Commitment. Public inputs in order: Commitment, Guess[0..4], Results[0..4].
type GuessResultCircuit struct {
	Salt   frontend.Variable                  `gnark:",secret"`
	Secret [game.WordLength]frontend.Variable `gnark:",secret"`

	Commitment frontend.Variable                  `gnark:",public"`
	Guess      [game.WordLength]frontend.Variable `gnark:",public"`
	Results    [game.WordLength]frontend.Variable `gnark:",public"`
}

func (c *GuessResultCircuit) Define(api frontend.API) error {
	if err := assertCommitment(api, c.Salt, c.Secret, c.Commitment); err != nil {
		return err
	}

	for i := 0; i < game.WordLength; i++ {
		g := c.Guess[i]
		correct := api.IsZero(api.Sub(g, c.Secret[i]))

		// present anywhere, repeated letters not consumed
		present := frontend.Variable(0)
		for j := 0; j < game.WordLength; j++ {
			present = api.Or(present, api.IsZero(api.Sub(g, c.Secret[j])))
		}

		expected := api.Select(correct, int(game.Correct), api.Select(present, int(game.Present), int(game.Absent)))
		api.AssertIsEqual(c.Results[i], expected)
	}
	return nil
}

// WordCommitCircuit proves that the word behind Commitment is a leaf of the
// dictionary tree with root Root. Path and Dir must be allocated to the tree depth,
// see NewWordCommitCircuit.
type WordCommitCircuit struct {
	Salt    frontend.Variable                  `gnark:",secret"`
	Letters [game.WordLength]frontend.Variable `gnark:",secret"`
	Path    []frontend.Variable                `gnark:",secret"`
	Dir     []frontend.Variable                `gnark:",secret"`

	Commitment frontend.Variable `gnark:",public"`
	Root       frontend.Variable `gnark:",public"`
}

func NewWordCommitCircuit(depth int) *WordCommitCircuit {
	return &WordCommitCircuit{
		Path: make([]frontend.Variable, depth),
		Dir:  make([]frontend.Variable, depth),
	}
}

func (c *WordCommitCircuit) Define(api frontend.API) error {
	if err := assertCommitment(api, c.Salt, c.Letters, c.Commitment); err != nil {
		return err
	}

	// leaf = l1*256^4 + ... + l5
	leaf := frontend.Variable(0)
	for i := 0; i < game.WordLength; i++ {
		leaf = api.Add(api.Mul(leaf, 256), c.Letters[i])
	}

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	curr := leaf
	for i := range c.Path {
		api.AssertIsBoolean(c.Dir[i])
		h.Reset()
		left := api.Select(c.Dir[i], c.Path[i], curr)
		right := api.Select(c.Dir[i], curr, c.Path[i])
		h.Write(left, right)
		curr = h.Sum()
	}
	api.AssertIsEqual(curr, c.Root)
	return nil
}

// assertCommitment constrains commitment == MiMC(salt, l1..l5) and bounds every
// letter to a byte.
func assertCommitment(api frontend.API, salt frontend.Variable, letters [game.WordLength]frontend.Variable, commitment frontend.Variable) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(salt)
	for i := range letters {
		api.ToBinary(letters[i], 8)
		h.Write(letters[i])
	}
	api.AssertIsEqual(h.Sum(), commitment)
	return nil
}
