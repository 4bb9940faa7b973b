// Package index turns artifacts into overlapping text chunks and answers
// ranked retrieval queries over them. Entries are scoped to the session
// that produced the artifact.
package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/artifacts"
)

// Entry is one retrievable chunk of an artifact version.
type Entry struct {
	ArtifactID uuid.UUID `json:"artifact_id"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	Chunk      string    `json:"chunk"`
	Offset     int       `json:"offset"`
	Seq        int64     `json:"seq"`
	Score      float64   `json:"score"`
}

// Index ingests artifacts and answers queries within a scope.
//
// Ingest is idempotent per artifact name and version. Ingesting a new
// version leaves earlier versions' entries searchable.
type Index interface {
	Ingest(ctx context.Context, a artifacts.Artifact) error
	Query(ctx context.Context, scope uuid.UUID, text string, k int) ([]Entry, error)
	Drop(ctx context.Context, scope uuid.UUID) error
}

// IndexFailure reports an unavailable or failing backend.
type IndexFailure struct {
	Op    string
	Cause error
}

func (e *IndexFailure) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Cause)
}

func (e *IndexFailure) Unwrap() error {
	return e.Cause
}

func failure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexFailure{Op: op, Cause: err}
}

// rank orders entries by score, then smaller offset, then earlier
// ingestion, and keeps the first k.
func rank(entries []Entry, k int) []Entry {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Seq, b.Seq),
		)
	})
	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

func versionKey(scope uuid.UUID, name string, version int) string {
	return fmt.Sprintf("%s/%s@v%d", scope, name, version)
}
