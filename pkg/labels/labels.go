// Package labels parses the label file of an annotation session.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/tako/pkg/types"
)

// Set is an ordered list of unique, non-empty label names. A label's
// position is the class index stored with each sample.
type Set struct {
	names []string
	index map[string]int
}

// Load reads a label file with one label per line.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open label file: %v", types.ErrConfiguration, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads labels from r. Surrounding whitespace is trimmed; an empty
// input, a blank line or a repeated label is a configuration error.
func Parse(r io.Reader) (*Set, error) {
	s := &Set{index: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			return nil, fmt.Errorf("%w: blank label on line %d", types.ErrConfiguration, line)
		}
		if prev, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: label %q on line %d duplicates line %d",
				types.ErrConfiguration, name, line, prev+1)
		}
		s.index[name] = len(s.names)
		s.names = append(s.names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read labels: %v", types.ErrConfiguration, err)
	}
	if len(s.names) == 0 {
		return nil, fmt.Errorf("%w: label file has no labels", types.ErrConfiguration)
	}
	return s, nil
}

// New builds a set from names, applying the same rules as Parse.
func New(names ...string) (*Set, error) {
	return Parse(strings.NewReader(strings.Join(names, "\n")))
}

// Len returns the number of labels
func (s *Set) Len() int {
	return len(s.names)
}

// At returns the label name for class index i
func (s *Set) At(i int) (string, error) {
	if i < 0 || i >= len(s.names) {
		return "", fmt.Errorf("%w: label %d of %d", types.ErrOutOfRange, i, len(s.names))
	}
	return s.names[i], nil
}

// Index returns the class index of name
func (s *Set) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns a copy of the label names in order
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}
