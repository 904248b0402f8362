package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/internal/domain/repositories"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

const (
	defaultDrainRunLimit = 50
	maxDrainRunLimit     = 500
)

const drainRunColumns = `id, source_address, trigger, outcome, native_balance, estimated_fee, remainder,
	token_messages, sequence, tx_hash, error_message, started_at, finished_at`

type DrainRunRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

var _ repositories.DrainRunRepository = (*DrainRunRepository)(nil)

func NewDrainRunRepository(db *sqlx.DB, logger *logger.Logger) *DrainRunRepository {
	return &DrainRunRepository{db: db, logger: logger}
}

// Record inserts a finished run. Re-recording the same run ID is a no-op.
func (r *DrainRunRepository) Record(ctx context.Context, run *entities.DrainRun) error {
	query := `
		INSERT INTO drain_runs (` + drainRunColumns + `)
		VALUES (:id, :source_address, :trigger, :outcome, :native_balance, :estimated_fee, :remainder,
			:token_messages, :sequence, :tx_hash, :error_message, :started_at, :finished_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		r.logger.Error("Failed to record drain run", "run_id", run.ID.String(), "error", err)
		return fmt.Errorf("failed to record drain run: %w", err)
	}
	return nil
}

// List returns runs newest first
func (r *DrainRunRepository) List(ctx context.Context, filter repositories.DrainRunFilter) ([]*entities.DrainRun, error) {
	var sb strings.Builder
	var args []interface{}
	argIdx := 1

	sb.WriteString(`SELECT ` + drainRunColumns + ` FROM drain_runs WHERE 1=1`)

	if filter.SourceAddress != nil {
		sb.WriteString(fmt.Sprintf(" AND source_address = $%d", argIdx))
		args = append(args, *filter.SourceAddress)
		argIdx++
	}
	if filter.Outcome != nil {
		sb.WriteString(fmt.Sprintf(" AND outcome = $%d", argIdx))
		args = append(args, string(*filter.Outcome))
		argIdx++
	}
	if filter.Since != nil {
		sb.WriteString(fmt.Sprintf(" AND started_at >= $%d", argIdx))
		args = append(args, *filter.Since)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDrainRunLimit
	}
	if limit > maxDrainRunLimit {
		limit = maxDrainRunLimit
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIdx))
	args = append(args, limit)

	var runs []*entities.DrainRun
	if err := r.db.SelectContext(ctx, &runs, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to list drain runs: %w", err)
	}
	return runs, nil
}
