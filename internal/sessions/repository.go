package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/pkg/query"
	"github.com/kavlartius217/meditrust/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "sessions", "s").
	Project("id", "ID").
	Project("phase", "Phase").
	Project("report", "Report").
	Project("document_id", "Document").
	Project("state", "State").
	Project("ingested", "Ingested").
	Project("aborted", "Aborted").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a PostgreSQL-backed Store. The workflow state is kept
// as JSONB next to the report text it excludes.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &repo{db: db, logger: logger.With("system", "sessions")}
}

func (r *repo) Save(ctx context.Context, s Session) error {
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("encode workflow state: %w", err)
	}
	ingested, err := json.Marshal(s.Ingested)
	if err != nil {
		return fmt.Errorf("encode ingested keys: %w", err)
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions(id, phase, report, document_id, state, ingested, aborted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				phase = EXCLUDED.phase,
				state = EXCLUDED.state,
				ingested = EXCLUDED.ingested,
				aborted = EXCLUDED.aborted,
				updated_at = EXCLUDED.updated_at`,
			s.ID, s.Phase, s.State.Report, s.Document, state, ingested, s.Aborted, s.CreatedAt, s.UpdatedAt,
		)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Session, error) {
	q, args := query.NewBuilder(projection).WhereEquals("ID", id).Build()

	s, err := repository.QueryOne(ctx, r.db, q, args, scanSession)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	return &s, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM sessions WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrNotFound)
	}
	r.logger.Info("session deleted", "id", id)
	return nil
}

func scanSession(sc repository.Scanner) (Session, error) {
	var (
		s        Session
		report   string
		state    []byte
		ingested []byte
	)
	err := sc.Scan(
		&s.ID,
		&s.Phase,
		&report,
		&s.Document,
		&state,
		&ingested,
		&s.Aborted,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}

	if err := json.Unmarshal(state, &s.State); err != nil {
		return Session{}, fmt.Errorf("decode workflow state: %w", err)
	}
	if len(ingested) > 0 {
		if err := json.Unmarshal(ingested, &s.Ingested); err != nil {
			return Session{}, fmt.Errorf("decode ingested keys: %w", err)
		}
	}
	s.State.Report = report
	return s, nil
}
