package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/pkg/query"
	"github.com/kavlartius217/meditrust/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "turns", "t").
	Project("ordinal", "Ordinal").
	Project("user_text", "UserText").
	Project("context", "Context").
	Project("bot_text", "BotText").
	Project("degraded", "Degraded").
	Project("created_at", "CreatedAt").
	Project("scope", "Scope")

type recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder persists turns to the turns table. The (scope, ordinal)
// unique key rejects a second writer for the same ordinal.
func NewRecorder(db *sql.DB, logger *slog.Logger) Recorder {
	return &recorder{db: db, logger: logger.With("system", "turns")}
}

func (r *recorder) Record(ctx context.Context, scope uuid.UUID, t Turn) error {
	entries, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("encode turn context: %w", err)
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns(scope, ordinal, user_text, context, bot_text, degraded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			scope, t.Ordinal, t.UserText, entries, t.BotText, t.Degraded, t.CreatedAt,
		)
		return struct{}{}, err
	})
	if err != nil {
		return repository.MapError(err, sql.ErrNoRows, ErrOrdinalTaken)
	}
	return nil
}

func (r *recorder) Load(ctx context.Context, scope uuid.UUID) ([]Turn, error) {
	q, args := query.NewBuilder(projection, query.SortField{Field: "Ordinal"}).
		WhereEquals("Scope", scope).
		Build()

	turns, err := repository.QueryMany(ctx, r.db, q, args, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	return turns, nil
}

func (r *recorder) Delete(ctx context.Context, scope uuid.UUID) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE scope = $1`, scope)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	r.logger.Debug("turns deleted", "scope", scope)
	return nil
}

func scanTurn(s repository.Scanner) (Turn, error) {
	var (
		t       Turn
		entries []byte
		scope   uuid.UUID
	)
	if err := s.Scan(&t.Ordinal, &t.UserText, &entries, &t.BotText, &t.Degraded, &t.CreatedAt, &scope); err != nil {
		return Turn{}, err
	}
	t.Context = []index.Entry{}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &t.Context); err != nil {
			return Turn{}, fmt.Errorf("decode turn context: %w", err)
		}
	}
	return t, nil
}
