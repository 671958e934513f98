package merkle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"wordduel-zk/internal/game"
)

// TreeFile is the serialized form served to clients: per-level node arrays,
// zero values and the word index, all field elements as 0x-hex.
type TreeFile struct {
	Hasher      string         `json:"hasher"`
	Root        string         `json:"root"`
	Height      int            `json:"height"`
	TotalLeaves int            `json:"totalLeaves"`
	Zeros       []string       `json:"zeros"`
	Levels      [][]string     `json:"levels"`
	WordIndex   map[string]int `json:"wordIndex"`
}

func Hex(x *big.Int) string { return fmt.Sprintf("0x%x", x) }

func ParseHex(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("merkle: %q missing 0x prefix", s)
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return nil, fmt.Errorf("merkle: %q is not hex", s)
	}
	return v, nil
}

func (d *Dictionary) Export() TreeFile {
	t := d.tree
	tf := TreeFile{
		Hasher:      t.hasher.Name(),
		Root:        Hex(t.Root()),
		Height:      t.Depth,
		TotalLeaves: t.NumLeaves(),
		Zeros:       make([]string, len(t.Zeros)),
		Levels:      make([][]string, len(t.Levels)),
		WordIndex:   make(map[string]int, len(d.words)),
	}
	for i, z := range t.Zeros {
		tf.Zeros[i] = Hex(z)
	}
	for l, nodes := range t.Levels {
		tf.Levels[l] = make([]string, len(nodes))
		for i, n := range nodes {
			tf.Levels[l][i] = Hex(n)
		}
	}
	for i, w := range d.words {
		tf.WordIndex[w.String()] = i
	}
	return tf
}

func (d *Dictionary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := json.NewEncoder(cw)
	err := enc.Encode(d.Export())
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Import rebuilds a dictionary from a tree file and checks that the stored
// root matches a recomputation from the leaves.
func Import(tf TreeFile) (*Dictionary, error) {
	h, ok := HasherByName(tf.Hasher)
	if !ok {
		return nil, fmt.Errorf("merkle: unknown hasher %q", tf.Hasher)
	}
	if len(tf.Levels) == 0 {
		return nil, ErrEmptyTree
	}
	words := make([]game.Word, len(tf.Levels[0]))
	for i, s := range tf.Levels[0] {
		v, err := ParseHex(s)
		if err != nil {
			return nil, err
		}
		w, err := game.Unpack(v)
		if err != nil {
			return nil, fmt.Errorf("merkle: leaf %d: %w", i, err)
		}
		words[i] = w
	}
	for s, i := range tf.WordIndex {
		if i < 0 || i >= len(words) || words[i].String() != s {
			return nil, fmt.Errorf("merkle: word index entry %q -> %d disagrees with leaves", s, i)
		}
	}
	d, err := NewDictionaryWithDepth(words, tf.Height, h)
	if err != nil {
		return nil, err
	}
	want, err := ParseHex(tf.Root)
	if err != nil {
		return nil, err
	}
	if d.Root().Cmp(want) != 0 {
		return nil, fmt.Errorf("merkle: root mismatch: file %s, rebuilt %s", tf.Root, Hex(d.Root()))
	}
	return d, nil
}

func ReadTreeFile(r io.Reader) (*Dictionary, error) {
	var tf TreeFile
	if err := json.NewDecoder(r).Decode(&tf); err != nil {
		return nil, err
	}
	return Import(tf)
}
