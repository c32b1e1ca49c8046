package sqlite

import (
	"context"

	errwrap "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/helper"
)

var dailyMetricColumns = []string{
	"query_count", "distinct_fingerprints",
	"avg_duration_ms", "min_duration_ms", "max_duration_ms",
	"p50_duration_ms", "p95_duration_ms", "p99_duration_ms",
	"avg_efficiency_ratio", "high_impact_count", "updated_at",
}

var fingerprintMetricColumns = []string{
	"fingerprint", "execution_count", "first_seen", "last_seen",
	"avg_duration_ms", "min_duration_ms", "max_duration_ms", "p95_duration_ms",
	"avg_efficiency_ratio", "worst_improvement_level",
	"representative_query_id", "updated_at",
}

type MetricsRepository interface {
	// UpsertDaily writes rollup rows keyed by
	// (date, source_db_type, source_db_host, database_connection_id).
	// Re-running with unchanged inputs rewrites identical values.
	UpsertDaily(ctx context.Context, metrics []*entity.DailyMetric) (int64, error)
	UpsertFingerprint(ctx context.Context, metrics []*entity.FingerprintMetric) (int64, error)

	ListDaily(ctx context.Context, visibleConnectionIDs []int64, fromDate, toDate string) ([]*entity.DailyMetric, error)
	ListFingerprints(ctx context.Context, visibleConnectionIDs []int64, limit int) ([]*entity.FingerprintMetric, error)
}

type metricsRepo struct {
	db *gorm.DB
}

func NewMetricsRepository(db *gorm.DB) MetricsRepository {
	return &metricsRepo{db: db}
}

func (r *metricsRepo) UpsertDaily(ctx context.Context, metrics []*entity.DailyMetric) (int64, error) {
	funcName := "MetricsRepository.UpsertDaily"
	if err := helper.CheckDeadline(ctx); err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "date"}, {Name: "source_db_type"},
				{Name: "source_db_host"}, {Name: "database_connection_id"},
			},
			DoUpdates: clause.AssignmentColumns(dailyMetricColumns),
		}).
		Create(metrics)
	if res.Error != nil {
		return 0, errwrap.Wrap(res.Error, funcName)
	}
	return int64(len(metrics)), nil
}

func (r *metricsRepo) UpsertFingerprint(ctx context.Context, metrics []*entity.FingerprintMetric) (int64, error) {
	funcName := "MetricsRepository.UpsertFingerprint"
	if err := helper.CheckDeadline(ctx); err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "fingerprint_hash"}, {Name: "source_db_type"},
				{Name: "source_db_host"}, {Name: "database_connection_id"},
			},
			DoUpdates: clause.AssignmentColumns(fingerprintMetricColumns),
		}).
		Create(metrics)
	if res.Error != nil {
		return 0, errwrap.Wrap(res.Error, funcName)
	}
	return int64(len(metrics)), nil
}

func (r *metricsRepo) ListDaily(ctx context.Context, visibleConnectionIDs []int64, fromDate, toDate string) ([]*entity.DailyMetric, error) {
	funcName := "MetricsRepository.ListDaily"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	q := r.db.WithContext(ctx).
		Where("database_connection_id IN (?)", visibleConnectionIDs)
	if fromDate != "" {
		q = q.Where("date >= ?", fromDate)
	}
	if toDate != "" {
		q = q.Where("date <= ?", toDate)
	}

	var metrics []*entity.DailyMetric
	err := q.Order("date asc, source_db_host asc").Find(&metrics).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return metrics, nil
}

func (r *metricsRepo) ListFingerprints(ctx context.Context, visibleConnectionIDs []int64, limit int) ([]*entity.FingerprintMetric, error) {
	funcName := "MetricsRepository.ListFingerprints"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	if limit <= 0 {
		limit = 50
	}

	var metrics []*entity.FingerprintMetric
	err := r.db.WithContext(ctx).
		Where("database_connection_id IN (?)", visibleConnectionIDs).
		Order("max_duration_ms desc").
		Limit(limit).
		Find(&metrics).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return metrics, nil
}
