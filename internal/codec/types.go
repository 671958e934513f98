package codec

import (
	"fmt"
	"math/big"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

// Secret is a player's committed word. Never leaves the local client except as
// private witness input to the proof backend.
type Secret struct {
	Word       string                  `json:"word"`
	Letters    [game.WordLength]uint8 `json:"letters"`
	Salt       uint64                  `json:"salt,string"`
	Commitment string                  `json:"commitment"` // 0x-hex field element
}

func (s Secret) WordValue() (game.Word, error) { return game.ParseWord(s.Word) }

func (s Secret) CommitmentValue() (*big.Int, error) { return merkle.ParseHex(s.Commitment) }

// Proof is what the proof backend returns: opaque proof bytes plus the
// serialized public inputs the ledger checks them against.
type Proof struct {
	Proof        []byte `json:"proof"`
	PublicInputs []byte `json:"publicInputs"`
}

func (p Proof) Empty() bool { return len(p.Proof) == 0 && len(p.PublicInputs) == 0 }

// MembershipProof is the JSON form of merkle.Proof.
type MembershipProof struct {
	Root         string   `json:"root"`
	Leaf         string   `json:"leaf"`
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

func FromMerkle(p merkle.Proof) MembershipProof {
	m := MembershipProof{
		Root:         merkle.Hex(p.Root),
		Leaf:         merkle.Hex(p.Leaf),
		PathElements: make([]string, len(p.PathElements)),
		PathIndices:  make([]int, len(p.PathIndices)),
	}
	for i, e := range p.PathElements {
		m.PathElements[i] = merkle.Hex(e)
	}
	for i, b := range p.PathIndices {
		m.PathIndices[i] = int(b)
	}
	return m
}

func (m MembershipProof) ToMerkle() (merkle.Proof, error) {
	var p merkle.Proof
	var err error
	if p.Root, err = merkle.ParseHex(m.Root); err != nil {
		return p, err
	}
	if p.Leaf, err = merkle.ParseHex(m.Leaf); err != nil {
		return p, err
	}
	if len(m.PathElements) != len(m.PathIndices) {
		return p, fmt.Errorf("codec: %d path elements vs %d indices", len(m.PathElements), len(m.PathIndices))
	}
	p.PathElements = make([]*big.Int, len(m.PathElements))
	p.PathIndices = make([]uint8, len(m.PathIndices))
	for i, s := range m.PathElements {
		if p.PathElements[i], err = merkle.ParseHex(s); err != nil {
			return p, err
		}
		if m.PathIndices[i] != 0 && m.PathIndices[i] != 1 {
			return p, fmt.Errorf("codec: path index %d is %d", i, m.PathIndices[i])
		}
		p.PathIndices[i] = uint8(m.PathIndices[i])
	}
	return p, nil
}

// ProveRequest is the wire body of a remote proof request. Guess is only read
// for guess-result proofs.
type ProveRequest struct {
	Secret Secret `json:"secret"`
	Guess  string `json:"guess,omitempty"`
}
