// Package datasets implements the character corpus and the time-window
// minibatch iterators used for truncated backpropagation through time.
package datasets

import "os"
import "path/filepath"

import "github.com/pkg/errors"

// Classes is the number of distinct symbols: blank plus 26 letters.
const Classes = 27

// Alphabet lists the printable form of every symbol, indexed by symbol.
const Alphabet = " abcdefghijklmnopqrstuvwxyz"

// Splits are the corpus files expected under a data directory.
var Splits = []string{"train", "dev", "test"}

var (
	ErrEmptyCorpus = errors.New("empty text file")
	ErrBadSymbol   = errors.New("bad text file")
)

// Corpus is an immutable sequence of symbols in [0, Classes).
type Corpus []byte

// NewCorpus transforms raw bytes into symbols (byte value mod 32) and checks
// that every symbol lands in [0, Classes). The raw slice is not retained.
func NewCorpus(raw []byte) (Corpus, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyCorpus
	}
	c := make(Corpus, len(raw))
	for i, b := range raw {
		s := b % 32
		if s >= Classes {
			return nil, errors.Wrapf(ErrBadSymbol, "byte %d at offset %d", b, i)
		}
		c[i] = s
	}
	return c, nil
}

// LoadCorpus reads a whole text file into memory.
func LoadCorpus(name string) (Corpus, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading corpus %q", name)
	}
	c, err := NewCorpus(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "corpus %q", name)
	}
	return c, nil
}

// LoadSplits loads every file in Splits from dir, keyed by split name.
func LoadSplits(dir string) (map[string]Corpus, error) {
	out := make(map[string]Corpus, len(Splits))
	for _, name := range Splits {
		c, err := LoadCorpus(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// Len returns the number of symbols.
func (c Corpus) Len() int {
	return len(c)
}

// String decodes the corpus into its printable form.
func (c Corpus) String() string {
	return Decode(c)
}

// Encode maps a character to its symbol. Space and letters of either case
// are accepted; anything else reports false.
func Encode(r rune) (byte, bool) {
	switch {
	case r == ' ':
		return 0, true
	case 'a' <= r && r <= 'z':
		return byte(r-'a') + 1, true
	case 'A' <= r && r <= 'Z':
		return byte(r-'A') + 1, true
	}
	return 0, false
}

// EncodeString encodes s, failing on the first character outside Alphabet.
func EncodeString(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		sym, ok := Encode(r)
		if !ok {
			return nil, errors.Errorf("character %q at %d is not one of %q", r, i, Alphabet)
		}
		out = append(out, sym)
	}
	return out, nil
}

// Decode maps symbols back to characters. Out of range symbols become '?'.
func Decode(syms []byte) string {
	buf := make([]byte, len(syms))
	for i, s := range syms {
		if int(s) < len(Alphabet) {
			buf[i] = Alphabet[s]
		} else {
			buf[i] = '?'
		}
	}
	return string(buf)
}
