package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestHealthCheck(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, HealthCheck(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err := HealthCheck(context.Background(), db)
	assert.ErrorContains(t, err, "database health check failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStats(t *testing.T) {
	db, _ := newMockDB(t)

	recordStats(db)
	assert.Equal(t, float64(db.Stats().OpenConnections),
		testutil.ToFloat64(metrics.DatabaseConnectionsGauge.WithLabelValues("open")))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 5, orDefault(0, 5))
	assert.Equal(t, 5, orDefault(-1, 5))
	assert.Equal(t, 12, orDefault(12, 5))
}
