package fs

import (
	"path/filepath"
	"sort"

	"github.com/bft-labs/dcaledger/internal/adapters/token"
)

const tokenFileName = "tokens.json"

// TokenFile stores the balance books of the sandbox tokens.
type TokenFile struct {
	dir string
}

// NewTokenFile creates a TokenFile for the given directory.
func NewTokenFile(dir string) *TokenFile {
	return &TokenFile{dir: dir}
}

// Load returns the saved books keyed by symbol. Returns an empty map if
// nothing was saved yet.
func (f *TokenFile) Load() (map[string]token.Book, error) {
	var books []token.Book
	if err := readJSON(f.Path(), &books); err != nil {
		return nil, err
	}
	out := make(map[string]token.Book, len(books))
	for _, b := range books {
		out[b.Symbol] = b
	}
	return out, nil
}

// Save writes the books of all given tokens atomically.
func (f *TokenFile) Save(tokens ...*token.Token) error {
	books := make([]token.Book, 0, len(tokens))
	for _, t := range tokens {
		books = append(books, t.Snapshot())
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Symbol < books[j].Symbol })
	return writeJSON(f.dir, f.Path(), books)
}

// Path returns the full path to the token file.
func (f *TokenFile) Path() string {
	return filepath.Join(f.dir, tokenFileName)
}
