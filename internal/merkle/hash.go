package merkle

import (
	"math/big"

	bnmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"golang.org/x/crypto/sha3"
)

// Hasher combines two child nodes into their parent.
type Hasher interface {
	Name() string
	Combine(left, right *big.Int) *big.Int
}

// --- encode BN254 field elements as 32-byte big-endian ---
func FieldBytes(x *big.Int) []byte {
	out := make([]byte, 32)
	if x == nil {
		return out
	}
	b := x.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

func bytesToFE(b []byte) *big.Int { return new(big.Int).SetBytes(b) }

// HashMiMC hashes field elements with BN254 MiMC, consistent with the in-circuit gadget.
func HashMiMC(elems ...*big.Int) *big.Int {
	h := bnmimc.NewMiMC()
	for _, e := range elems {
		h.Write(FieldBytes(e))
	}
	return bytesToFE(h.Sum(nil))
}

type mimcHasher struct{}

// MiMC is the circuit-friendly instantiation, used when membership is proven
// inside a SNARK.
var MiMC Hasher = mimcHasher{}

func (mimcHasher) Name() string { return "mimc" }

func (mimcHasher) Combine(left, right *big.Int) *big.Int { return HashMiMC(left, right) }

type keccakHasher struct{}

// Keccak is the ledger-native instantiation, used for guesses that are
// revealed anyway and checked directly by the contract.
var Keccak Hasher = keccakHasher{}

func (keccakHasher) Name() string { return "keccak" }

func (keccakHasher) Combine(left, right *big.Int) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write(FieldBytes(left))
	h.Write(FieldBytes(right))
	return bytesToFE(h.Sum(nil))
}

// HasherByName resolves a hasher from its Name.
func HasherByName(name string) (Hasher, bool) {
	switch name {
	case MiMC.Name():
		return MiMC, true
	case Keccak.Name():
		return Keccak, true
	}
	return nil, false
}
