package index

import (
	"context"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/artifacts"
)

// Observer receives index operation outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveIndex(op string, err error)
}

type instrumented struct {
	Index
	obs Observer
}

// Instrument reports every Ingest and Query outcome to obs.
func Instrument(idx Index, obs Observer) Index {
	if obs == nil {
		return idx
	}
	return &instrumented{Index: idx, obs: obs}
}

func (i *instrumented) Ingest(ctx context.Context, a artifacts.Artifact) error {
	err := i.Index.Ingest(ctx, a)
	i.obs.ObserveIndex("ingest", err)
	return err
}

func (i *instrumented) Query(ctx context.Context, scope uuid.UUID, text string, k int) ([]Entry, error) {
	out, err := i.Index.Query(ctx, scope, text, k)
	i.obs.ObserveIndex("query", err)
	return out, err
}
