package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahmatrdn/go-query-insight/entity"
)

func openTestStore(t *testing.T) *RawQueryTestDeps {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)

	return &RawQueryTestDeps{
		Raw:      NewRawQueryRepository(db),
		Analysis: NewAnalysisRepository(db),
		Metrics:  NewMetricsRepository(db),
		Conns:    NewConnectionRepository(db),
	}
}

type RawQueryTestDeps struct {
	Raw      RawQueryRepository
	Analysis AnalysisRepository
	Metrics  MetricsRepository
	Conns    ConnectionRepository
}

func mysqlRow(hash, dedupKey string, connID int64, capturedAt time.Time) *entity.RawSlowQuery {
	return &entity.RawSlowQuery{
		SourceDBType:         entity.DBTypeMySQL,
		SourceDBHost:         "db1.internal",
		Fingerprint:          "SELECT * FROM t WHERE id = ?",
		FingerprintHash:      hash,
		DedupKey:             dedupKey,
		FullSQL:              "SELECT * FROM t WHERE id = 1",
		DurationMs:           1200,
		RowsExamined:         50000,
		RowsReturned:         10,
		CapturedAt:           capturedAt,
		Status:               entity.StatusNew,
		DatabaseConnectionID: &connID,
	}
}

func TestStoreDeduplicates(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := deps.Raw.Store(ctx, mysqlRow("aaa", "key-1", 1, now))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same dedup key again: one stored row, one skip, no error.
	inserted, err = deps.Raw.Store(ctx, mysqlRow("aaa", "key-1", 1, now))
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := deps.Raw.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpsertSnapshotRefreshesInPlace(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	row := mysqlRow("bbb", "pg-key-1", 1, now)
	row.SourceDBType = entity.DBTypePostgres

	inserted, err := deps.Raw.UpsertSnapshot(ctx, row)
	require.NoError(t, err)
	assert.True(t, inserted)

	refreshed := mysqlRow("bbb", "pg-key-1", 1, now.Add(time.Hour))
	refreshed.SourceDBType = entity.DBTypePostgres
	refreshed.DurationMs = 2400

	inserted, err = deps.Raw.UpsertSnapshot(ctx, refreshed)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := deps.Raw.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(2400), rows[0].DurationMs)
}

func TestUpsertSnapshotBackfillsPlan(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// First cycle captured the snapshot without a plan.
	planless := mysqlRow("ccc", "pg-key-2", 1, now)
	planless.SourceDBType = entity.DBTypePostgres
	_, err := deps.Raw.UpsertSnapshot(ctx, planless)
	require.NoError(t, err)

	// A later cycle explained the statement successfully.
	planned := mysqlRow("ccc", "pg-key-2", 1, now.Add(time.Hour))
	planned.SourceDBType = entity.DBTypePostgres
	planned.Plan = &entity.ExplainPlan{
		SourceDBType: entity.DBTypePostgres,
		Postgres: &entity.PostgresPlan{
			Root: entity.PostgresPlanNode{NodeType: "Seq Scan", RelationName: "t", PlanRows: 9000},
		},
	}
	inserted, err := deps.Raw.UpsertSnapshot(ctx, planned)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := deps.Raw.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Plan)
	assert.Equal(t, int64(9000), rows[0].Plan.EstimatedRows())
}

func TestFindPendingOldestFirst(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	_, err := deps.Raw.Store(ctx, mysqlRow("c1", "k1", 1, base.Add(2*time.Minute)))
	require.NoError(t, err)
	_, err = deps.Raw.Store(ctx, mysqlRow("c2", "k2", 1, base))
	require.NoError(t, err)

	analyzed := mysqlRow("c3", "k3", 1, base.Add(time.Minute))
	analyzed.Status = entity.StatusAnalyzed
	_, err = deps.Raw.Store(ctx, analyzed)
	require.NoError(t, err)

	pending, err := deps.Raw.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c2", pending[0].FingerprintHash)
	assert.Equal(t, "c1", pending[1].FingerprintHash)
}

func TestUpdateStatus(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()

	_, err := deps.Raw.Store(ctx, mysqlRow("d1", "k1", 1, time.Now().UTC()))
	require.NoError(t, err)

	rows, err := deps.Raw.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, deps.Raw.UpdateStatus(ctx, rows[0].ID, entity.StatusAnalyzed))

	pending, err := deps.Raw.FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListFiltersByVisibleConnections(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := deps.Raw.Store(ctx, mysqlRow("e1", "k1", 1, now))
	require.NoError(t, err)
	_, err = deps.Raw.Store(ctx, mysqlRow("e2", "k2", 2, now))
	require.NoError(t, err)

	// A legacy row without a connection id must never surface.
	orphan := mysqlRow("e3", "k3", 0, now)
	orphan.DatabaseConnectionID = nil
	_, err = deps.Raw.Store(ctx, orphan)
	require.NoError(t, err)

	rows, err := deps.Raw.List(ctx, ListFilter{VisibleConnectionIDs: []int64{1}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e1", rows[0].FingerprintHash)

	rows, err = deps.Raw.List(ctx, ListFilter{VisibleConnectionIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLatestCapturedAtWatermark(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()

	// Empty store: zero watermark, no error.
	ts, err := deps.Raw.LatestCapturedAt(ctx, entity.DBTypeMySQL, "db1.internal")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	_, err = deps.Raw.Store(ctx, mysqlRow("f1", "k1", 1, base))
	require.NoError(t, err)
	_, err = deps.Raw.Store(ctx, mysqlRow("f2", "k2", 1, base.Add(time.Hour)))
	require.NoError(t, err)

	ts, err = deps.Raw.LatestCapturedAt(ctx, entity.DBTypeMySQL, "db1.internal")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), ts.UTC())
}

func TestPlanRoundTripsThroughStore(t *testing.T) {
	deps := openTestStore(t)
	ctx := context.Background()

	row := mysqlRow("g1", "k1", 1, time.Now().UTC())
	row.Plan = &entity.ExplainPlan{
		SourceDBType: entity.DBTypeMySQL,
		MySQL: &entity.MySQLPlan{Rows: []entity.MySQLPlanRow{
			{Table: "t", AccessType: "ALL", Rows: 500000},
		}},
	}

	_, err := deps.Raw.Store(ctx, row)
	require.NoError(t, err)

	rows, err := deps.Raw.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Plan)

	scans := rows[0].Plan.FullScans()
	require.Len(t, scans, 1)
	assert.Equal(t, int64(500000), scans[0].Rows)
}
