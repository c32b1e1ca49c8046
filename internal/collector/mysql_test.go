package collector

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// fakeStore keeps rows in memory and applies the same dedup-key rule as
// the sqlite store.
type fakeStore struct {
	rows      map[string]*entity.RawSlowQuery
	snapshots map[string]int
	watermark time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:      make(map[string]*entity.RawSlowQuery),
		snapshots: make(map[string]int),
	}
}

func (s *fakeStore) Store(_ context.Context, row *entity.RawSlowQuery) (bool, error) {
	if _, exists := s.rows[row.DedupKey]; exists {
		return false, nil
	}
	s.rows[row.DedupKey] = row
	return true, nil
}

func (s *fakeStore) UpsertSnapshot(_ context.Context, row *entity.RawSlowQuery) (bool, error) {
	s.snapshots[row.DedupKey]++
	s.rows[row.DedupKey] = row
	return s.snapshots[row.DedupKey] == 1, nil
}

func (s *fakeStore) LatestCapturedAt(context.Context, string, string) (time.Time, error) {
	return s.watermark, nil
}

func testTarget(dbType string) *entity.DatabaseConnection {
	return &entity.DatabaseConnection{
		ID:             1,
		Name:           "orders-primary",
		DBType:         dbType,
		Host:           "db1.internal",
		Port:           3306,
		TeamID:         10,
		OrganizationID: 100,
	}
}

var slowLogColumns = []string{"start_time", "sql_text", "query_time", "rows_examined", "rows_sent"}

var explainColumns = []string{
	"id", "select_type", "table", "partitions", "type",
	"possible_keys", "key", "key_len", "ref", "rows", "filtered", "Extra",
}

func TestMySQLCollectStoresAndExplains(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	captured := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	sqlText := "SELECT * FROM orders WHERE customer_id = 42"

	mock.ExpectQuery(regexp.QuoteMeta("FROM mysql.slow_log")).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows(slowLogColumns).
			AddRow(captured, []byte(sqlText), "00:00:01.500000", int64(50000), int64(12)))

	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN " + sqlText)).
		WillReturnRows(sqlmock.NewRows(explainColumns).
			AddRow(1, "SIMPLE", "orders", nil, "ALL", nil, nil, nil, nil, int64(50000), 10.0, "Using where"))

	store := newFakeStore()
	col := NewMySQLCollector(db, testTarget(entity.DBTypeMySQL), store, Options{}, zap.NewNop().Sugar())

	stored, skipped, err := col.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 0, skipped)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, store.rows, 1)
	for _, row := range store.rows {
		assert.Equal(t, entity.DBTypeMySQL, row.SourceDBType)
		assert.Equal(t, "db1.internal", row.SourceDBHost)
		assert.Equal(t, "SELECT * FROM orders WHERE customer_id = ?", row.Fingerprint)
		assert.InDelta(t, 1500, row.DurationMs, 0.001)
		assert.Equal(t, int64(50000), row.RowsExamined)
		assert.Equal(t, int64(12), row.RowsReturned)
		assert.Equal(t, entity.StatusNew, row.Status)
		require.NotNil(t, row.DatabaseConnectionID)
		assert.Equal(t, int64(1), *row.DatabaseConnectionID)

		require.NotNil(t, row.Plan)
		scans := row.Plan.FullScans()
		require.Len(t, scans, 1)
		assert.Equal(t, "orders", scans[0].Table)
		assert.Equal(t, int64(50000), row.Plan.EstimatedRows())
	}
}

func TestMySQLCollectSkipsDuplicateLogEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	captured := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	sqlText := "UPDATE orders SET state = 'done' WHERE id = 7"

	// The same log entry appears twice across overlapping poll windows.
	mock.ExpectQuery(regexp.QuoteMeta("FROM mysql.slow_log")).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows(slowLogColumns).
			AddRow(captured, []byte(sqlText), "00:00:02.000000", int64(10), int64(0)).
			AddRow(captured, []byte(sqlText), "00:00:02.000000", int64(10), int64(0)))

	store := newFakeStore()
	col := NewMySQLCollector(db, testTarget(entity.DBTypeMySQL), store, Options{}, zap.NewNop().Sugar())

	stored, skipped, err := col.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, skipped)
	require.NoError(t, mock.ExpectationsWereMet())

	// No EXPLAIN was issued for the UPDATE; plan stays nil.
	for _, row := range store.rows {
		assert.Nil(t, row.Plan)
	}
}

func TestMySQLCollectSurvivesExplainFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	captured := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	sqlText := "SELECT name FROM customers WHERE id = 3"

	mock.ExpectQuery(regexp.QuoteMeta("FROM mysql.slow_log")).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows(slowLogColumns).
			AddRow(captured, []byte(sqlText), "00:00:00.900000", int64(5), int64(1)))

	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN " + sqlText)).
		WillReturnError(assert.AnError)

	store := newFakeStore()
	col := NewMySQLCollector(db, testTarget(entity.DBTypeMySQL), store, Options{}, zap.NewNop().Sugar())

	stored, _, err := col.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	require.NoError(t, mock.ExpectationsWereMet())

	for _, row := range store.rows {
		assert.Nil(t, row.Plan, "explain failure must not block ingestion")
	}
}

func TestNewRejectsUnknownDBType(t *testing.T) {
	target := testTarget("oracle")
	_, err := New(target, newFakeStore(), Options{}, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported db type")
}

func TestParseQueryTimeMs(t *testing.T) {
	assert.InDelta(t, 1500, parseQueryTimeMs("00:00:01.500000"), 0.001)
	assert.InDelta(t, 3723000, parseQueryTimeMs("01:02:03.000000"), 0.001)
	assert.Equal(t, float64(0), parseQueryTimeMs("garbage"))
}
