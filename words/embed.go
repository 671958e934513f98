package words

import (
	"bytes"
	_ "embed"

	"wordduel-zk/internal/game"
	"wordduel-zk/internal/merkle"
)

//go:embed words.txt
var content []byte

// Default returns the built-in dictionary word list.
func Default() ([]game.Word, error) {
	return merkle.LoadWords(bytes.NewReader(content))
}
