package password

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Blacklist passwords prohibidos (comparación case-insensitive). Se arma
// una vez al arrancar y después sólo se lee: no necesita lock.
type Blacklist struct {
	words map[string]struct{}
}

func normalizeWord(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NewBlacklist arma una blacklist en memoria.
func NewBlacklist(words ...string) *Blacklist {
	b := &Blacklist{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if w = normalizeWord(w); w != "" {
			b.words[w] = struct{}{}
		}
	}
	return b
}

// ReadBlacklist una palabra por línea; vacías y "#..." se ignoran.
func ReadBlacklist(r io.Reader) (*Blacklist, error) {
	b := NewBlacklist()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := normalizeWord(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		b.words[w] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadBlacklist lee el archivo de identity.password_blacklist_path.
// Path vacío = blacklist vacía.
func LoadBlacklist(path string) (*Blacklist, error) {
	if strings.TrimSpace(path) == "" {
		return NewBlacklist(), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("password blacklist: %w", err)
	}
	defer f.Close()
	return ReadBlacklist(f)
}

// Contains nil-safe.
func (b *Blacklist) Contains(pwd string) bool {
	if b == nil {
		return false
	}
	_, ok := b.words[normalizeWord(pwd)]
	return ok
}

// Len cantidad de entradas.
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.words)
}
