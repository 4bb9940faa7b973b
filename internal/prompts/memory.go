package prompts

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
)

type memory struct {
	mu         sync.RWMutex
	prompts    map[uuid.UUID]Prompt
	logger     *slog.Logger
	pagination pagination.Config
}

// NewMemory creates a process-local prompt System.
func NewMemory(logger *slog.Logger, cfg pagination.Config) System {
	return &memory{
		prompts:    make(map[uuid.UUID]Prompt),
		logger:     logger.With("system", "prompts"),
		pagination: cfg,
	}
}

func (m *memory) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *memory) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Prompt], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var items []Prompt
	for _, p := range m.prompts {
		if !filters.match(p) {
			continue
		}
		if page.Search != nil && *page.Search != "" && !matchesSearch(p, *page.Search) {
			continue
		}
		items = append(items, p)
	}
	m.mu.RUnlock()

	slices.SortFunc(items, func(a, b Prompt) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})

	result := pagination.Slice(items, page)
	return &result, nil
}

func (m *memory) Find(_ context.Context, id uuid.UUID) (*Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memory) Create(_ context.Context, cmd CreateCommand) (*Prompt, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(cmd.Name, uuid.Nil) {
		return nil, ErrDuplicate
	}

	p := Prompt{
		ID:           uuid.New(),
		Name:         cmd.Name,
		Stage:        cmd.Stage,
		Instructions: cmd.Instructions,
		Description:  cmd.Description,
	}
	m.prompts[p.ID] = p

	m.logger.Info("prompt created", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return &p, nil
}

func (m *memory) Update(_ context.Context, id uuid.UUID, cmd UpdateCommand) (*Prompt, error) {
	if err := CreateCommand(cmd).validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.nameTaken(cmd.Name, id) {
		return nil, ErrDuplicate
	}

	p.Name = cmd.Name
	p.Stage = cmd.Stage
	p.Instructions = cmd.Instructions
	p.Description = cmd.Description
	m.prompts[id] = p

	m.logger.Info("prompt updated", "id", p.ID, "name", p.Name)
	return &p, nil
}

func (m *memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.prompts[id]; !ok {
		return ErrNotFound
	}
	delete(m.prompts, id)

	m.logger.Info("prompt deleted", "id", id)
	return nil
}

func (m *memory) Activate(_ context.Context, id uuid.UUID) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	for pid, p := range m.prompts {
		if p.Stage == target.Stage && p.Active {
			p.Active = false
			m.prompts[pid] = p
		}
	}
	target.Active = true
	m.prompts[id] = target

	m.logger.Info("prompt activated", "id", target.ID, "name", target.Name, "stage", target.Stage)
	return &target, nil
}

func (m *memory) Deactivate(_ context.Context, id uuid.UUID) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Active = false
	m.prompts[id] = p

	m.logger.Info("prompt deactivated", "id", p.ID, "name", p.Name, "stage", p.Stage)
	return &p, nil
}

func (m *memory) Instructions(_ context.Context, stage Stage) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.prompts {
		if p.Stage == stage && p.Active {
			return p.Instructions, nil
		}
	}
	return Instructions(stage)
}

func (m *memory) Spec(_ context.Context, stage Stage) (string, error) {
	return Spec(stage)
}

func (m *memory) nameTaken(name string, except uuid.UUID) bool {
	for id, p := range m.prompts {
		if id != except && p.Name == name {
			return true
		}
	}
	return false
}

func matchesSearch(p Prompt, search string) bool {
	s := strings.ToLower(search)
	if strings.Contains(strings.ToLower(p.Name), s) {
		return true
	}
	return p.Description != nil && strings.Contains(strings.ToLower(*p.Description), s)
}
