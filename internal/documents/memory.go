package documents

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

type memory struct {
	mu         sync.RWMutex
	docs       map[uuid.UUID]Document
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewMemory creates a process-local System. Report bytes still go through store.
func NewMemory(store storage.System, logger *slog.Logger, cfg pagination.Config) System {
	return &memory{
		docs:       make(map[uuid.UUID]Document),
		storage:    store,
		logger:     logger.With("system", "documents"),
		pagination: cfg,
	}
}

func (m *memory) Handler(maxUploadSize int64) *Handler {
	return NewHandler(m, m.logger, m.pagination, maxUploadSize)
}

func (m *memory) List(
	_ context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Document], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var matched []Document
	for _, d := range m.docs {
		if !filters.match(d) {
			continue
		}
		if page.Search != nil && !strings.Contains(strings.ToLower(d.Filename), strings.ToLower(*page.Search)) {
			continue
		}
		matched = append(matched, d)
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Document) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Filename, b.Filename)
	})

	result := pagination.Slice(matched, page)
	return &result, nil
}

func (m *memory) Find(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (*Document, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	key := StorageKey(cmd.Scope, cmd.Filename)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.docs {
		if d.StorageKey == key {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, key)
		}
	}

	if err := m.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload report blob: %w", err)
	}

	d := Document{
		ID:          uuid.New(),
		Scope:       cmd.Scope,
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		PageCount:   cmd.PageCount,
		StorageKey:  key,
		UploadedAt:  time.Now().UTC(),
	}
	m.docs[d.ID] = d

	m.logger.Info("document created", "id", d.ID, "scope", d.Scope, "filename", d.Filename)
	return &d, nil
}

func (m *memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	d, ok := m.docs[id]
	delete(m.docs, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	if err := m.storage.Delete(ctx, d.StorageKey); err != nil {
		m.logger.Warn("blob delete failed", "key", d.StorageKey, "error", err)
	}
	return nil
}

func (m *memory) Text(ctx context.Context, id uuid.UUID) (string, error) {
	d, err := m.Find(ctx, id)
	if err != nil {
		return "", err
	}
	return readText(ctx, m.storage, d)
}
