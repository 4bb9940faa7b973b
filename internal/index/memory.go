package index

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/artifacts"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "do": true, "does": true,
	"i": true, "in": true, "is": true, "it": true, "me": true, "my": true,
	"of": true, "on": true, "or": true, "the": true, "to": true, "was": true,
	"what": true, "which": true, "with": true,
}

type scopeIndex struct {
	entries  []Entry
	terms    [][]string
	versions map[string]bool
	seq      int64
}

type memory struct {
	mu      sync.RWMutex
	chunker Chunker
	scopes  map[uuid.UUID]*scopeIndex
}

// NewMemory returns a process-local lexical index. Scores are the
// fraction of distinct query terms found in a chunk; chunks matching no
// term are never returned.
func NewMemory(chunker Chunker) Index {
	return &memory{
		chunker: chunker,
		scopes:  make(map[uuid.UUID]*scopeIndex),
	}
}

func (m *memory) Ingest(ctx context.Context, a artifacts.Artifact) error {
	if err := ctx.Err(); err != nil {
		return failure("ingest", err)
	}

	chunks := m.chunker.Split(a.Content)

	m.mu.Lock()
	defer m.mu.Unlock()

	si, ok := m.scopes[a.Scope]
	if !ok {
		si = &scopeIndex{versions: make(map[string]bool)}
		m.scopes[a.Scope] = si
	}

	key := versionKey(a.Scope, a.Name, a.Version)
	if si.versions[key] {
		return nil
	}
	si.versions[key] = true

	for _, c := range chunks {
		si.seq++
		si.entries = append(si.entries, Entry{
			ArtifactID: a.ID,
			Name:       a.Name,
			Version:    a.Version,
			Chunk:      c.Text,
			Offset:     c.Offset,
			Seq:        si.seq,
		})
		si.terms = append(si.terms, terms(c.Text))
	}
	return nil
}

func (m *memory) Query(ctx context.Context, scope uuid.UUID, text string, k int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure("query", err)
	}

	query := distinct(terms(text))
	if len(query) == 0 {
		return []Entry{}, nil
	}

	m.mu.RLock()
	si := m.scopes[scope]
	var hits []Entry
	if si != nil {
		for i, e := range si.entries {
			present := make(map[string]bool, len(si.terms[i]))
			for _, t := range si.terms[i] {
				present[t] = true
			}
			matched := 0
			for _, q := range query {
				if present[q] {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			e.Score = float64(matched) / float64(len(query))
			hits = append(hits, e)
		}
	}
	m.mu.RUnlock()

	if hits == nil {
		return []Entry{}, nil
	}
	return rank(hits, k), nil
}

func (m *memory) Drop(_ context.Context, scope uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, scope)
	return nil
}

func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func distinct(ts []string) []string {
	seen := make(map[string]bool, len(ts))
	var out []string
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
