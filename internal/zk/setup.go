package zk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

const GuessKeyName = "guess"

// CommitKeyName is the key file stem of the word-commit circuit for a tree depth.
func CommitKeyName(depth int) string { return fmt.Sprintf("commit-d%d", depth) }

type circuitKeys struct {
	name string
	cs   constraint.ConstraintSystem
	pk   groth16.ProvingKey
	vk   groth16.VerifyingKey
}

func compile(circuit frontend.Circuit) (constraint.ConstraintSystem, error) {
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
}

// loadOrSetup compiles circuit and reuses dir/name.{pk,vk} when both parse,
// otherwise runs a fresh groth16 setup and writes them.
func loadOrSetup(dir, name string, circuit frontend.Circuit) (*circuitKeys, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	cs, err := compile(circuit)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	vkPath := filepath.Join(dir, name+".vk")
	pkPath := filepath.Join(dir, name+".pk")

	if vk, pk, err := readKeys(vkPath, pkPath); err == nil {
		return &circuitKeys{name: name, cs: cs, pk: pk, vk: vk}, nil
	}

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", name, err)
	}
	if err := writeVK(vkPath, vk); err != nil {
		return nil, err
	}
	if err := writePK(pkPath, pk); err != nil {
		return nil, err
	}
	return &circuitKeys{name: name, cs: cs, pk: pk, vk: vk}, nil
}

// EnsureKeys makes sure proving/verifying keys exist for the guess-result
// circuit and for the word-commit circuit at the given dictionary depth.
func EnsureKeys(dir string, depth int) error {
	if _, err := loadOrSetup(dir, GuessKeyName, &GuessResultCircuit{}); err != nil {
		return err
	}
	_, err := loadOrSetup(dir, CommitKeyName(depth), NewWordCommitCircuit(depth))
	return err
}

// --- key IO helpers using io.WriterTo / io.ReaderFrom ---

func writeVK(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

func writePK(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

func readVK(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}

func readPK(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func readKeys(vkPath, pkPath string) (groth16.VerifyingKey, groth16.ProvingKey, error) {
	vk, err := readVK(vkPath)
	if err != nil {
		return nil, nil, err
	}
	pk, err := readPK(pkPath)
	if err != nil {
		return nil, nil, err
	}
	return vk, pk, nil
}
