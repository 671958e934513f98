package app

import (
	"fmt"
	"os"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/codec"
	"wordduel-zk/internal/commit"
	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
	"wordduel-zk/words"
)

// LoadDictionary builds the dictionary tree for h. path may be a word list
// (one per line) or a JSON tree file; empty uses the embedded list.
func LoadDictionary(path string, h merkle.Hasher) (*merkle.Dictionary, error) {
	if path == "" {
		ws, err := words.Default()
		if err != nil {
			return nil, err
		}
		return merkle.NewDictionary(ws, h)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".json") {
		d, err := merkle.ReadTreeFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if d.Hasher() != h {
			return nil, fmt.Errorf("%s: tree uses %s, want %s", path, d.Hasher().Name(), h.Name())
		}
		return d, nil
	}
	ws, err := merkle.LoadWords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return merkle.NewDictionary(ws, h)
}

type CommitResult struct {
	Secret     codec.Secret          `json:"secret"`
	Membership codec.MembershipProof `json:"membership"`
}

// Commit picks a fresh salt for word and returns the secret together with the
// word's membership proof in dict.
func Commit(word string, dict *merkle.Dictionary) (*CommitResult, error) {
	w, err := game.ParseWord(word)
	if err != nil {
		return nil, err
	}
	mp, err := ProveMembership(dict, w)
	if err != nil {
		return nil, err
	}
	sec, err := commit.New(w)
	if err != nil {
		return nil, err
	}
	return &CommitResult{Secret: sec, Membership: mp}, nil
}

func ProveMembership(dict *merkle.Dictionary, w game.Word) (codec.MembershipProof, error) {
	p, err := dict.Prove(w)
	if err != nil {
		return codec.MembershipProof{}, err
	}
	return codec.FromMerkle(p), nil
}

// VerifyMembership checks mp against dict's root.
func VerifyMembership(dict *merkle.Dictionary, mp codec.MembershipProof) error {
	p, err := mp.ToMerkle()
	if err != nil {
		return err
	}
	if !dict.Verify(p) {
		return errorsmod.Wrap(game.ErrNotInDictionary, "proof does not match dictionary root")
	}
	return nil
}
