package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/query"
	"github.com/kavlartius217/meditrust/pkg/repository"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a PostgreSQL-backed System that mirrors each version's
// content to blob storage under BlobKey.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "artifacts"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Put(ctx context.Context, cmd PutCommand) (*Artifact, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	var blobKey string

	a, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Artifact, error) {
		if err := repository.LockKey(ctx, tx, cmd.Scope.String()+"/"+cmd.Name); err != nil {
			return Artifact{}, fmt.Errorf("lock artifact key: %w", err)
		}

		var version int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE scope = $1 AND name = $2`,
			cmd.Scope, cmd.Name,
		).Scan(&version)
		if err != nil {
			return Artifact{}, fmt.Errorf("next version: %w", err)
		}

		blobKey = BlobKey(cmd.Scope, cmd.Name, version)
		if err := r.storage.Upload(ctx, blobKey, strings.NewReader(cmd.Content), "text/markdown"); err != nil {
			return Artifact{}, fmt.Errorf("mirror artifact blob: %w", err)
		}

		q := `
			INSERT INTO artifacts(id, scope, name, stage, version, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, scope, name, stage, version, content, created_at`
		args := []any{uuid.New(), cmd.Scope, cmd.Name, cmd.Stage, version, cmd.Content}

		return repository.QueryOne(ctx, tx, q, args, scanArtifact)
	})

	if err != nil {
		if blobKey != "" {
			if delErr := r.storage.Delete(ctx, blobKey); delErr != nil {
				r.logger.Warn("compensating blob delete failed", "key", blobKey, "error", delErr)
			}
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("artifact stored", "scope", a.Scope, "artifact", a.Key())
	return &a, nil
}

func (r *repo) Latest(ctx context.Context, scope uuid.UUID, name string) (*Artifact, error) {
	q, args := query.NewBuilder(projection, query.SortField{Field: "Version", Descending: true}).
		WhereEquals("Scope", scope).
		WhereEquals("Name", name).
		BuildPage(1, 1)

	a, err := repository.QueryOne(ctx, r.db, q, args, scanArtifact)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &a, nil
}

func (r *repo) Version(ctx context.Context, scope uuid.UUID, name string, version int) (*Artifact, error) {
	q, args := query.NewBuilder(projection).
		WhereEquals("Scope", scope).
		WhereEquals("Name", name).
		WhereEquals("Version", version).
		Build()

	a, err := repository.QueryOne(ctx, r.db, q, args, scanArtifact)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &a, nil
}

func (r *repo) Versions(ctx context.Context, scope uuid.UUID, name string) ([]Artifact, error) {
	q, args := query.NewBuilder(projection, query.SortField{Field: "Version"}).
		WhereEquals("Scope", scope).
		WhereEquals("Name", name).
		Build()

	vs, err := repository.QueryMany(ctx, r.db, q, args, scanArtifact)
	if err != nil {
		return nil, fmt.Errorf("query artifact versions: %w", err)
	}
	return vs, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Artifact], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort...).
		WhereSearch(page.Search, "Name", "Content")
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count artifacts: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanArtifact)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}
