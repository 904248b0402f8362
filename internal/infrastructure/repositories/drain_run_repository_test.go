package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/internal/domain/repositories"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

func newMockRepo(t *testing.T) (*DrainRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDrainRunRepository(sqlx.NewDb(db, "postgres"), logger.NewNop()), mock
}

func TestDrainRunRepository_Record(t *testing.T) {
	repo, mock := newMockRepo(t)

	seq := int64(42)
	hash := "abc123"
	run := &entities.DrainRun{
		ID:            uuid.New(),
		SourceAddress: "EQSource",
		Trigger:       entities.TriggerSourceWebhook,
		Outcome:       entities.OutcomeSubmitted,
		NativeBalance: decimal.RequireFromString("0.5"),
		EstimatedFee:  decimal.RequireFromString("0.1"),
		Remainder:     decimal.RequireFromString("0.33"),
		TokenMessages: 1,
		Sequence:      &seq,
		TxHash:        &hash,
		StartedAt:     time.Now().Add(-time.Second),
		FinishedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO drain_runs").
		WithArgs(run.ID.String(), "EQSource", "webhook", "submitted", "0.5", "0.1", "0.33",
			int64(1), int64(42), "abc123", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainRunRepository_RecordError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO drain_runs").WillReturnError(errors.New("connection reset"))

	err := repo.Record(context.Background(), &entities.DrainRun{ID: uuid.New()})
	assert.ErrorContains(t, err, "failed to record drain run")
}

func TestDrainRunRepository_ListFilters(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "source_address", "trigger", "outcome", "native_balance", "estimated_fee", "remainder",
		"token_messages", "sequence", "tx_hash", "error_message", "started_at", "finished_at",
	}).AddRow(id.String(), "EQSource", "poll", "nothing_to_drain", "0.04", "0", "0",
		0, nil, nil, nil, started, started.Add(time.Second))

	mock.ExpectQuery(`(?s)SELECT .+ FROM drain_runs WHERE 1=1 AND source_address = \$1 AND outcome = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("EQSource", "nothing_to_drain", 10).
		WillReturnRows(rows)

	source := "EQSource"
	outcome := entities.OutcomeNothingToDrain
	runs, err := repo.List(context.Background(), repositories.DrainRunFilter{
		SourceAddress: &source,
		Outcome:       &outcome,
		Limit:         10,
	})

	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, entities.TriggerSourcePoll, runs[0].Trigger)
	assert.Equal(t, entities.OutcomeNothingToDrain, runs[0].Outcome)
	assert.True(t, runs[0].NativeBalance.Equal(decimal.RequireFromString("0.04")))
	assert.Nil(t, runs[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainRunRepository_ListClampsLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`LIMIT \$1`).WithArgs(maxDrainRunLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	runs, err := repo.List(context.Background(), repositories.DrainRunFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
