package ledgertest

import (
	"context"
	"math/big"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/commit"
	"wordduel-zk/internal/game"
)

// FakeProver emits proofs with honest public inputs and placeholder proof
// bytes, accepted by LayoutVerifier. Err, when set, fails every call.
type FakeProver struct {
	CommitRoot *big.Int
	Err        error
	Calls      atomic.Int32
}

var fakeProof = []byte("ledgertest-proof")

func (p *FakeProver) ProveGuessResult(ctx context.Context, secret codec.Secret, guess game.Word) (codec.Proof, error) {
	p.Calls.Add(1)
	if err := p.check(ctx, secret); err != nil {
		return codec.Proof{}, err
	}
	word, _ := secret.WordValue()
	c, _ := secret.CommitmentValue()
	pub := codec.GuessPublic{Commitment: c, Guess: guess.LetterCodes(), Results: game.Score(guess, word)}
	return codec.Proof{Proof: fakeProof, PublicInputs: pub.Encode()}, nil
}

func (p *FakeProver) ProveSelfReveal(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	word, err := secret.WordValue()
	if err != nil {
		return codec.Proof{}, errorsmod.Wrap(game.ErrProofFailed, err.Error())
	}
	return p.ProveGuessResult(ctx, secret, word)
}

func (p *FakeProver) ProveWordCommit(ctx context.Context, secret codec.Secret) (codec.Proof, error) {
	p.Calls.Add(1)
	if err := p.check(ctx, secret); err != nil {
		return codec.Proof{}, err
	}
	c, _ := secret.CommitmentValue()
	root := p.CommitRoot
	if root == nil {
		root = new(big.Int)
	}
	pub := codec.CommitPublic{Commitment: c, Root: root}
	return codec.Proof{Proof: fakeProof, PublicInputs: pub.Encode()}, nil
}

func (p *FakeProver) check(ctx context.Context, secret codec.Secret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Err != nil {
		return errorsmod.Wrap(game.ErrProofFailed, p.Err.Error())
	}
	if !commit.Open(secret) {
		return errorsmod.Wrap(game.ErrProofFailed, "secret does not open its commitment")
	}
	return nil
}
