package documents

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

// System defines the public contract for report document operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Document], error)

	Find(ctx context.Context, id uuid.UUID) (*Document, error)
	Create(ctx context.Context, cmd CreateCommand) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Text downloads the stored report and decodes it with Parse.
	Text(ctx context.Context, id uuid.UUID) (string, error)
}

func readText(ctx context.Context, store storage.System, d *Document) (string, error) {
	rc, err := store.Download(ctx, d.StorageKey)
	if err != nil {
		return "", fmt.Errorf("download report blob: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read report blob: %w", err)
	}

	p, err := Parse(d.Filename, d.ContentType, data)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}
