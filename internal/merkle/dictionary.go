package merkle

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"wordduel-zk/internal/game"
)

// Dictionary is a closed word list indexed into a fixed-depth tree.
type Dictionary struct {
	tree  *Tree
	words []game.Word
	index map[game.Word]int
}

func NewDictionary(words []game.Word, h Hasher) (*Dictionary, error) {
	return NewDictionaryWithDepth(words, DepthFor(len(words)), h)
}

func NewDictionaryWithDepth(words []game.Word, depth int, h Hasher) (*Dictionary, error) {
	index := make(map[game.Word]int, len(words))
	leaves := make([]*big.Int, len(words))
	for i, w := range words {
		if _, dup := index[w]; dup {
			return nil, fmt.Errorf("merkle: duplicate word %q", w)
		}
		index[w] = i
		leaves[i] = w.Pack()
	}
	t, err := Build(leaves, depth, h)
	if err != nil {
		return nil, err
	}
	return &Dictionary{tree: t, words: append([]game.Word(nil), words...), index: index}, nil
}

func (d *Dictionary) Root() *big.Int { return d.tree.Root() }
func (d *Dictionary) Depth() int { return d.tree.Depth }
func (d *Dictionary) Len() int { return len(d.words) }
func (d *Dictionary) Hasher() Hasher { return d.tree.hasher }
func (d *Dictionary) Tree() *Tree { return d.tree }

func (d *Dictionary) Contains(w game.Word) bool {
	_, ok := d.index[w]
	return ok
}

// Prove returns the membership proof of w or ErrNotInDictionary.
func (d *Dictionary) Prove(w game.Word) (Proof, error) {
	idx, ok := d.index[w]
	if !ok {
		return Proof{}, errorsmod.Wrapf(game.ErrNotInDictionary, "%q", w)
	}
	return d.tree.Path(idx)
}

// Verify checks p against this dictionary's root.
func (d *Dictionary) Verify(p Proof) bool {
	return Verify(d.tree.hasher, p, d.tree.Levels[d.tree.Depth][0])
}

// LoadWords reads one word per line. Blank lines and lines starting with '#' are skipped.
func LoadWords(r io.Reader) ([]game.Word, error) {
	var out []game.Word
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		w, err := game.ParseWord(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, w)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
