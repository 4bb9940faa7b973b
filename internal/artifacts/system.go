package artifacts

import (
	"context"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
)

// System is an append-only artifact store. Put never overwrites: each call
// yields the next version of (scope, name), so previously returned versions
// remain readable for the life of the store.
type System interface {
	Handler() *Handler

	Put(ctx context.Context, cmd PutCommand) (*Artifact, error)
	Latest(ctx context.Context, scope uuid.UUID, name string) (*Artifact, error)
	Version(ctx context.Context, scope uuid.UUID, name string, version int) (*Artifact, error)
	// Versions lists every version of name in ascending order.
	Versions(ctx context.Context, scope uuid.UUID, name string) ([]Artifact, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Artifact], error)
}
