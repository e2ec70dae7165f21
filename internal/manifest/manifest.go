// Package manifest persists the index of a content directory.
//
// Chunk and shard identity is read from the manifest rather than inferred
// from the lexicographic order of file names.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/tako/internal/utils"
)

// FileName is the manifest's name inside a content directory
const FileName = "manifest.json"

// Version of the manifest layout
const Version = 1

// Manifest is the ordered list of entries stored in one content directory.
// SessionID changes whenever the directory is reset. Source is the session id
// of the directory this one was derived from, if any.
type Manifest[E any] struct {
	Version   int       `json:"version"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source_session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Entries   []E       `json:"entries"`
}

// New returns an empty manifest with a fresh session id
func New[E any](kind string) *Manifest[E] {
	return &Manifest[E]{
		Version:   Version,
		Kind:      kind,
		SessionID: uuid.NewString(),
		Entries:   []E{},
	}
}

// Path returns the manifest path for dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the manifest of dir. The boolean is false when there is none.
func Load[E any](dir, kind string) (*Manifest[E], bool, error) {
	data, err := os.ReadFile(Path(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest[E]
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("failed to parse manifest %s: %w", Path(dir), err)
	}
	if m.Kind != kind {
		return nil, false, fmt.Errorf("manifest %s holds %q entries, want %q", Path(dir), m.Kind, kind)
	}
	if m.Version != Version {
		return nil, false, fmt.Errorf("manifest %s has unsupported version %d", Path(dir), m.Version)
	}
	return &m, true, nil
}

// Save atomically replaces the manifest of dir
func (m *Manifest[E]) Save(dir string) error {
	m.UpdatedAt = time.Now().UTC()
	return utils.WriteFileAtomic(Path(dir), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// Number parses a zero-padded entry name such as "0042" into 42
func Number(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	return n, err == nil
}

// SortNames orders entry names by their number. Names that are not numbers
// follow in lexicographic order.
func SortNames(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		na, oka := Number(a)
		nb, okb := Number(b)
		switch {
		case oka && okb && na != nb:
			return na - nb
		case oka && !okb:
			return -1
		case !oka && okb:
			return 1
		}
		return strings.Compare(a, b)
	})
}

// NextNumber returns one past the largest numbered name, or 0 when there is none
func NextNumber(names []string) int {
	next := 0
	for _, name := range names {
		if n, ok := Number(name); ok && n >= next {
			next = n + 1
		}
	}
	return next
}
