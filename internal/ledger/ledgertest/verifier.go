package ledgertest

import (
	"errors"
	"fmt"
	"math/big"

	"wordduel-zk/internal/codec"
)

// ProofVerifier checks proofs the way the contract's on-chain verifier would.
// zk.Backend satisfies it.
type ProofVerifier interface {
	VerifyGuessResult(p codec.Proof) error
	VerifyWordCommit(p codec.Proof) error
}

// LayoutVerifier accepts any non-empty proof whose public inputs are well
// formed. When CommitRoot is set, word-commit proofs must carry it.
type LayoutVerifier struct {
	CommitRoot *big.Int
}

func (v LayoutVerifier) VerifyGuessResult(p codec.Proof) error {
	if len(p.Proof) == 0 {
		return errors.New("empty proof")
	}
	_, err := codec.DecodeGuessPublic(p.PublicInputs)
	return err
}

func (v LayoutVerifier) VerifyWordCommit(p codec.Proof) error {
	if len(p.Proof) == 0 {
		return errors.New("empty proof")
	}
	pub, err := codec.DecodeCommitPublic(p.PublicInputs)
	if err != nil {
		return err
	}
	if v.CommitRoot != nil && pub.Root.Cmp(v.CommitRoot) != 0 {
		return fmt.Errorf("word-commit root mismatch")
	}
	return nil
}
