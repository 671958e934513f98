package zk

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/commit"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

// Backend proves and verifies locally with groth16 over BN254. The dictionary
// must be the MiMC one; its depth fixes the word-commit circuit shape.
type Backend struct {
	guess  *circuitKeys
	commit *circuitKeys
	dict   *merkle.Dictionary
}

func NewBackend(keysDir string, dict *merkle.Dictionary) (*Backend, error) {
	if dict.Hasher() != merkle.MiMC {
		return nil, fmt.Errorf("zk: word-commit dictionary must use mimc, got %s", dict.Hasher().Name())
	}
	g, err := loadOrSetup(keysDir, GuessKeyName, &GuessResultCircuit{})
	if err != nil {
		return nil, err
	}
	c, err := loadOrSetup(keysDir, CommitKeyName(dict.Depth()), NewWordCommitCircuit(dict.Depth()))
	if err != nil {
		return nil, err
	}
	return &Backend{guess: g, commit: c, dict: dict}, nil
}

// Root is the word-commit dictionary root the ledger must be configured with.
func (b *Backend) Root() *big.Int { return b.dict.Root() }

// ProveGuessResult proves the score of guess against the committed secret.
func (b *Backend) ProveGuessResult(ctx context.Context, secret codec.Secret, guess game.Word) (codec.Proof, error) {
	if err := ctx.Err(); err != nil {
		return codec.Proof{}, err
	}
	word, c, err := openSecret(secret)
	if err != nil {
		return codec.Proof{}, err
	}
	results := game.Score(guess, word)

	var assign GuessResultCircuit
	assign.Salt = secret.Salt
	assign.Commitment = c
	for i := 0; i < game.WordLength; i++ {
		assign.Secret[i] = secret.Letters[i]
		assign.Guess[i] = guess[i]
		assign.Results[i] = uint8(results[i])
	}
	proof, err := prove(b.guess, &assign)
	if err != nil {
		return codec.Proof{}, err
	}
	pub := codec.GuessPublic{Commitment: c, Guess: guess.LetterCodes(), Results: results}
	return codec.Proof{Proof: proof, PublicInputs: pub.Encode()}, nil
}

// ProveSelfReveal is the guess-result proof of the secret against itself: the
// public inputs disclose the word and all results are Correct.
func (b *Backend) ProveSelfReveal(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	word, err := secret.WordValue()
	if err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	return b.ProveGuessResult(ctx, secret, word)
}

// ProveWordCommit proves the committed word is in the dictionary.
func (b *Backend) ProveWordCommit(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	if err := ctx.Err(); err != nil {
		return codec.Proof{}, err
	}
	word, c, err := openSecret(secret)
	if err != nil {
		return codec.Proof{}, err
	}
	mp, err := b.dict.Prove(word)
	if err != nil {
		return codec.Proof{}, err
	}

	assign := NewWordCommitCircuit(b.dict.Depth())
	assign.Salt = secret.Salt
	for i := 0; i < game.WordLength; i++ {
		assign.Letters[i] = secret.Letters[i]
	}
	for i := range mp.PathElements {
		assign.Path[i] = mp.PathElements[i]
		assign.Dir[i] = mp.PathIndices[i]
	}
	assign.Commitment = c
	assign.Root = mp.Root

	proof, err := prove(b.commit, assign)
	if err != nil {
		return codec.Proof{}, err
	}
	pub := codec.CommitPublic{Commitment: c, Root: mp.Root}
	return codec.Proof{Proof: proof, PublicInputs: pub.Encode()}, nil
}

func (b *Backend) VerifyGuessResult(p codec.Proof) error {
	pub, err := codec.DecodeGuessPublic(p.PublicInputs)
	if err != nil {
		return errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	var assign GuessResultCircuit
	assign.Salt = 0
	assign.Commitment = pub.Commitment
	for i := 0; i < game.WordLength; i++ {
		assign.Secret[i] = 0
		assign.Guess[i] = pub.Guess[i]
		assign.Results[i] = uint8(pub.Results[i])
	}
	return verify(b.guess, p.Proof, &assign)
}

func (b *Backend) VerifyWordCommit(p codec.Proof) error {
	pub, err := codec.DecodeCommitPublic(p.PublicInputs)
	if err != nil {
		return errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	if pub.Root.Cmp(b.dict.Root()) != 0 {
		return errorsmod.Wrap(game.ErrProofFailed, "root mismatch: proof root != dictionary root")
	}
	assign := NewWordCommitCircuit(b.dict.Depth())
	assign.Salt = 0
	for i := range assign.Letters {
		assign.Letters[i] = 0
	}
	for i := range assign.Path {
		assign.Path[i] = 0
		assign.Dir[i] = 0
	}
	assign.Commitment = pub.Commitment
	assign.Root = pub.Root
	return verify(b.commit, p.Proof, assign)
}

func openSecret(secret codec.Secret) (game.Word, *big.Int, error) {
	word, err := secret.WordValue()
	if err != nil {
		return word, nil, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	if word.LetterCodes() != secret.Letters || !commit.Open(secret) {
		return word, nil, errorsmod.Wrap(game.ErrProofFailed, "secret does not open its commitment")
	}
	c, err := secret.CommitmentValue()
	if err != nil {
		return word, nil, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	return word, c, nil
}

func prove(k *circuitKeys, assign frontend.Circuit) ([]byte, error) {
	full, err := frontend.NewWitness(assign, ecc.BN254.ScalarField())
	if err != nil {
		return nil, errorsmod.Wrapf(game.ErrProofFailed, "%s witness: %v", k.name, err)
	}
	proof, err := groth16.Prove(k.cs, k.pk, full)
	if err != nil {
		return nil, errorsmod.Wrapf(game.ErrProofFailed, "%s prove: %v", k.name, err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func verify(k *circuitKeys, proofBin []byte, assign frontend.Circuit) error {
	if len(proofBin) == 0 {
		return errorsmod.Wrap(game.ErrProofFailed, "empty proof")
	}
	pubWit, err := frontend.NewWitness(assign, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errorsmod.Wrapf(game.ErrProofFailed, "%s public witness: %v", k.name, err)
	}
	pr := groth16.NewProof(ecc.BN254)
	if _, err := pr.ReadFrom(bytes.NewReader(proofBin)); err != nil {
		return errorsmod.Wrapf(game.ErrProofFailed, "%s proof decode: %v", k.name, err)
	}
	if err := groth16.Verify(pr, k.vk, pubWit); err != nil {
		return errorsmod.Wrapf(game.ErrProofFailed, "%s verify: %v", k.name, err)
	}
	return nil
}
