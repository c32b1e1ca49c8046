// Package integration exercises the whole pipeline end to end against a
// real sqlite store: collect from a mocked MySQL target, analyze,
// aggregate, then read back through the visibility-scoped usecase.
package integration

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	errwrap "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/aggregator"
	"github.com/rahmatrdn/go-query-insight/internal/analyzer"
	"github.com/rahmatrdn/go-query-insight/internal/collector"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
	"github.com/rahmatrdn/go-query-insight/internal/usecase"
	"github.com/rahmatrdn/go-query-insight/internal/visibility"
)

type pipeline struct {
	db       *gorm.DB
	rawRepo  sqlite.RawQueryRepository
	analysis sqlite.AnalysisRepository
	metrics  sqlite.MetricsRepository
	conns    sqlite.ConnectionRepository
	usecase  *usecase.QueryUsecase
	analyzer *analyzer.Analyzer
	aggr     *aggregator.Aggregator
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)

	rawRepo := sqlite.NewRawQueryRepository(db)
	analysisRepo := sqlite.NewAnalysisRepository(db)
	metricsRepo := sqlite.NewMetricsRepository(db)
	connRepo := sqlite.NewConnectionRepository(db)
	gate := visibility.NewGate(connRepo)

	return &pipeline{
		db:       db,
		rawRepo:  rawRepo,
		analysis: analysisRepo,
		metrics:  metricsRepo,
		conns:    connRepo,
		usecase:  usecase.NewQueryUsecase(rawRepo, analysisRepo, metricsRepo, gate),
		analyzer: analyzer.New(rawRepo, analysisRepo, nil, analyzer.Thresholds{}, zap.NewNop()),
		aggr:     aggregator.New(rawRepo, analysisRepo, metricsRepo, zap.NewNop()),
	}
}

var slowLogColumns = []string{"start_time", "sql_text", "query_time", "rows_examined", "rows_sent"}

var explainColumns = []string{
	"id", "select_type", "table", "partitions", "type",
	"possible_keys", "key", "key_len", "ref", "rows", "filtered", "Extra",
}

func TestPipelineCollectAnalyzeAggregateRead(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	target := &entity.DatabaseConnection{
		Name:            "orders-primary",
		DBType:          entity.DBTypeMySQL,
		Host:            "db1.internal",
		Port:            3306,
		VisibilityScope: entity.ScopeTeamOnly,
		OwnerUserID:     1,
		TeamID:          10,
		OrganizationID:  100,
		Enabled:         true,
	}
	require.NoError(t, p.conns.Create(ctx, target))
	require.NoError(t, p.db.Create(&entity.TeamMember{UserID: 2, TeamID: 10}).Error)

	// Collect: three log entries, one a duplicate of the first.
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	captured := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	fullScanSQL := "SELECT * FROM orders WHERE customer_id = 42"
	pointSQL := "SELECT name FROM customers WHERE id = 7"

	mock.ExpectQuery(regexp.QuoteMeta("FROM mysql.slow_log")).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows(slowLogColumns).
			AddRow(captured, []byte(fullScanSQL), "00:00:02.000000", int64(500000), int64(10)).
			AddRow(captured.Add(time.Minute), []byte(pointSQL), "00:00:00.800000", int64(3), int64(1)).
			AddRow(captured, []byte(fullScanSQL), "00:00:02.000000", int64(500000), int64(10)))

	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN " + fullScanSQL)).
		WillReturnRows(sqlmock.NewRows(explainColumns).
			AddRow(1, "SIMPLE", "orders", nil, "ALL", nil, nil, nil, nil, int64(500000), 10.0, "Using where"))
	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN " + pointSQL)).
		WillReturnRows(sqlmock.NewRows(explainColumns).
			AddRow(1, "SIMPLE", "customers", nil, "const", "PRIMARY", "PRIMARY", "8", "const", int64(1), 100.0, nil))
	// The duplicate entry is explained again before the store drops it.
	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN " + fullScanSQL)).
		WillReturnRows(sqlmock.NewRows(explainColumns).
			AddRow(1, "SIMPLE", "orders", nil, "ALL", nil, nil, nil, nil, int64(500000), 10.0, "Using where"))

	col := collector.NewMySQLCollector(mockDB, target, p.rawRepo, collector.Options{}, zap.NewNop().Sugar())
	stored, skipped, err := col.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 1, skipped)
	require.NoError(t, mock.ExpectationsWereMet())

	// Analyze: both NEW rows drain, statuses flip to ANALYZED.
	analyzed, err := p.analyzer.AnalyzePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, analyzed)

	pending, err := p.rawRepo.FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Aggregate both rollups.
	day := captured.Truncate(24 * time.Hour)
	_, err = p.aggr.AggregateDaily(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	_, err = p.aggr.AggregateByFingerprint(ctx)
	require.NoError(t, err)

	// Read back as a team member.
	member := int64(2)
	queries, err := p.usecase.ListSlowQueries(ctx, member, usecase.ListParams{})
	require.NoError(t, err)
	require.Len(t, queries, 2)

	var fullScanID int64
	for _, q := range queries {
		assert.Equal(t, entity.StatusAnalyzed, q.Status)
		if q.FullSQL == fullScanSQL {
			fullScanID = q.ID
		}
	}
	require.NotZero(t, fullScanID)

	detail, err := p.usecase.GetSlowQueryDetail(ctx, member, fullScanID)
	require.NoError(t, err)
	require.NotNil(t, detail.Analysis)
	assert.Equal(t, entity.LevelHigh, detail.Analysis.ImprovementLevel)
	assert.Equal(t, entity.MethodRuleBased, detail.Analysis.Method)
	assert.NotEmpty(t, detail.Analysis.Suggestions)

	daily, err := p.usecase.DailyMetrics(ctx, member, "", "")
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(2), daily[0].QueryCount)
	assert.Equal(t, int64(2), daily[0].DistinctFingerprints)
	assert.Equal(t, int64(1), daily[0].HighImpactCount)

	patterns, err := p.usecase.FingerprintMetrics(ctx, member, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	// Ordered by max duration: the full scan ranks first.
	assert.Equal(t, entity.LevelHigh, patterns[0].WorstImprovementLevel)
	assert.Equal(t, fullScanID, patterns[0].RepresentativeQueryID)

	// An outsider sees nothing, and detail reads deny existence.
	outsider := int64(99)
	queries, err = p.usecase.ListSlowQueries(ctx, outsider, usecase.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, queries)

	_, err = p.usecase.GetSlowQueryDetail(ctx, outsider, fullScanID)
	require.Error(t, err)
	assert.True(t, errwrap.Is(err, usecase.ErrNotVisible))

	daily, err = p.usecase.DailyMetrics(ctx, outsider, "", "")
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestPipelineRecollectIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	target := &entity.DatabaseConnection{
		Name:            "orders-primary",
		DBType:          entity.DBTypeMySQL,
		Host:            "db1.internal",
		Port:            3306,
		VisibilityScope: entity.ScopeOrgWide,
		TeamID:          10,
		OrganizationID:  100,
		Enabled:         true,
	}
	require.NoError(t, p.conns.Create(ctx, target))

	captured := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	sqlText := "DELETE FROM sessions WHERE expires_at < '2026-08-01'"

	for cycle := 0; cycle < 2; cycle++ {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta("FROM mysql.slow_log")).
			WithArgs(sqlmock.AnyArg(), 100).
			WillReturnRows(sqlmock.NewRows(slowLogColumns).
				AddRow(captured, []byte(sqlText), "00:00:03.000000", int64(80000), int64(0)))

		col := collector.NewMySQLCollector(mockDB, target, p.rawRepo, collector.Options{}, zap.NewNop().Sugar())
		stored, skipped, err := col.Collect(ctx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		mockDB.Close()

		if cycle == 0 {
			assert.Equal(t, 1, stored)
		} else {
			assert.Equal(t, 0, stored)
			assert.Equal(t, 1, skipped)
		}
	}

	rows, err := p.rawRepo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
