// Package corpus holds the fixed document set used to ground AI answers and
// to answer by keyword when the AI is unavailable.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrInvalidEntry = errors.New("corpus entry is invalid")

type Entry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Corpus is immutable after construction and safe for concurrent use.
type Corpus struct {
	entries []Entry
	encoded string
}

func New(entries []Entry) (*Corpus, error) {
	copied := make([]Entry, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Content) == "" {
			return nil, fmt.Errorf("%w: entry %d has empty title or content", ErrInvalidEntry, i)
		}
		copied[i] = e
	}

	encoded, err := json.Marshal(copied)
	if err != nil {
		return nil, fmt.Errorf("encode corpus failed: %w", err)
	}
	return &Corpus{entries: copied, encoded: string(encoded)}, nil
}

// Load reads a JSON array of {"title","content"} objects.
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file failed: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode corpus file failed: %w", err)
	}
	return New(entries)
}

func (c *Corpus) Len() int {
	return len(c.entries)
}

// Entries returns a copy in corpus order.
func (c *Corpus) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// JSON is the corpus serialized as a JSON array, in corpus order.
func (c *Corpus) JSON() string {
	return c.encoded
}
