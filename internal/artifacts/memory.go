package artifacts

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
)

type key struct {
	scope uuid.UUID
	name  string
}

type memory struct {
	mu         sync.RWMutex
	versions   map[key][]Artifact
	logger     *slog.Logger
	pagination pagination.Config
	now        func() time.Time
}

// NewMemory creates a process-local System. Contents do not survive restarts.
func NewMemory(logger *slog.Logger, cfg pagination.Config) System {
	return &memory{
		versions:   make(map[key][]Artifact),
		logger:     logger.With("system", "artifacts"),
		pagination: cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *memory) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *memory) Put(_ context.Context, cmd PutCommand) (*Artifact, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{cmd.Scope, cmd.Name}
	a := Artifact{
		ID:        uuid.New(),
		Scope:     cmd.Scope,
		Name:      cmd.Name,
		Stage:     cmd.Stage,
		Version:   len(m.versions[k]) + 1,
		Content:   cmd.Content,
		CreatedAt: m.now(),
	}
	m.versions[k] = append(m.versions[k], a)

	m.logger.Debug("artifact stored", "scope", a.Scope, "artifact", a.Key())
	return &a, nil
}

func (m *memory) Latest(_ context.Context, scope uuid.UUID, name string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.versions[key{scope, name}]
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	a := vs[len(vs)-1]
	return &a, nil
}

func (m *memory) Version(_ context.Context, scope uuid.UUID, name string, version int) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.versions[key{scope, name}]
	if version < 1 || version > len(vs) {
		return nil, ErrNotFound
	}
	a := vs[version-1]
	return &a, nil
}

func (m *memory) Versions(_ context.Context, scope uuid.UUID, name string) ([]Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.versions[key{scope, name}]), nil
}

func (m *memory) List(_ context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Artifact], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var matched []Artifact
	for _, vs := range m.versions {
		for _, a := range vs {
			if filters.match(a) && matchesSearch(a, page.Search) {
				matched = append(matched, a)
			}
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Artifact) int {
		return cmp.Or(
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(b.Version, a.Version),
			cmp.Compare(a.Name, b.Name),
		)
	})

	result := pagination.Slice(matched, page)
	return &result, nil
}
