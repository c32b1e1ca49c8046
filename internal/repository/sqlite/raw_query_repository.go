package sqlite

import (
	"context"
	"time"

	errwrap "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/helper"
)

// ListFilter narrows read-boundary listings. VisibleConnectionIDs is
// mandatory: an empty set yields no rows, never all rows.
type ListFilter struct {
	VisibleConnectionIDs []int64
	SourceDBType         string
	Status               string
	FingerprintHash      string
	Limit                int
	Offset               int
}

type RawQueryRepository interface {
	// Store inserts a row; a dedup-key conflict is reported as
	// (false, nil), not an error.
	Store(ctx context.Context, row *entity.RawSlowQuery) (inserted bool, err error)
	// UpsertSnapshot inserts or refreshes a pre-aggregated pattern
	// snapshot (PostgreSQL source). Returns true when a new row was
	// created rather than an existing one refreshed.
	UpsertSnapshot(ctx context.Context, row *entity.RawSlowQuery) (inserted bool, err error)

	FindPending(ctx context.Context, limit int) ([]*entity.RawSlowQuery, error)
	UpdateStatus(ctx context.Context, id int64, status string) error

	FindByID(ctx context.Context, id int64, visibleConnectionIDs []int64) (*entity.RawSlowQuery, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.RawSlowQuery, error)

	// FindInRange returns all rows captured in [start, end) for the
	// aggregator, any status, stable order.
	FindInRange(ctx context.Context, start, end time.Time) ([]*entity.RawSlowQuery, error)
	FindAll(ctx context.Context) ([]*entity.RawSlowQuery, error)

	// LatestCapturedAt is the collector poll watermark for one source.
	LatestCapturedAt(ctx context.Context, dbType, host string) (time.Time, error)
}

type rawQueryRepo struct {
	db *gorm.DB
}

func NewRawQueryRepository(db *gorm.DB) RawQueryRepository {
	return &rawQueryRepo{db: db}
}

func (r *rawQueryRepo) Store(ctx context.Context, row *entity.RawSlowQuery) (bool, error) {
	funcName := "RawQueryRepository.Store"
	if err := helper.CheckDeadline(ctx); err != nil {
		return false, errwrap.Wrap(err, funcName)
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, errwrap.Wrap(res.Error, funcName)
	}
	return res.RowsAffected == 1, nil
}

func (r *rawQueryRepo) UpsertSnapshot(ctx context.Context, row *entity.RawSlowQuery) (bool, error) {
	funcName := "RawQueryRepository.UpsertSnapshot"
	if err := helper.CheckDeadline(ctx); err != nil {
		return false, errwrap.Wrap(err, funcName)
	}

	// Only the collector writes for a given source, so the existence
	// probe and the upsert cannot race with each other.
	var existing int64
	if err := r.db.WithContext(ctx).
		Model(&entity.RawSlowQuery{}).
		Where("dedup_key = ?", row.DedupKey).
		Count(&existing).Error; err != nil {
		return false, errwrap.Wrap(err, funcName)
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dedup_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"full_sql", "duration_ms", "rows_examined", "rows_returned",
				"captured_at", "plan", "updated_at",
			}),
		}).
		Create(row)
	if res.Error != nil {
		return false, errwrap.Wrap(res.Error, funcName)
	}
	return existing == 0, nil
}

func (r *rawQueryRepo) FindPending(ctx context.Context, limit int) ([]*entity.RawSlowQuery, error) {
	funcName := "RawQueryRepository.FindPending"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var rows []*entity.RawSlowQuery
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.StatusNew).
		Order("captured_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return rows, nil
}

func (r *rawQueryRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	funcName := "RawQueryRepository.UpdateStatus"
	if err := helper.CheckDeadline(ctx); err != nil {
		return errwrap.Wrap(err, funcName)
	}

	err := r.db.WithContext(ctx).
		Model(&entity.RawSlowQuery{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

func (r *rawQueryRepo) FindByID(ctx context.Context, id int64, visibleConnectionIDs []int64) (*entity.RawSlowQuery, error) {
	funcName := "RawQueryRepository.FindByID"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var row entity.RawSlowQuery
	err := r.db.WithContext(ctx).
		Where("id = ? AND database_connection_id IN (?)", id, visibleConnectionIDs).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errwrap.Wrap(err, funcName)
	}
	return &row, nil
}

func (r *rawQueryRepo) List(ctx context.Context, filter ListFilter) ([]*entity.RawSlowQuery, error) {
	funcName := "RawQueryRepository.List"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	// NULL connection ids never match the IN clause, so legacy rows stay
	// invisible until backfilled.
	q := r.db.WithContext(ctx).
		Where("database_connection_id IN (?)", filter.VisibleConnectionIDs)

	if filter.SourceDBType != "" {
		q = q.Where("source_db_type = ?", filter.SourceDBType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.FingerprintHash != "" {
		q = q.Where("fingerprint_hash = ?", filter.FingerprintHash)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []*entity.RawSlowQuery
	err := q.Order("captured_at desc, id desc").
		Limit(limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return rows, nil
}

func (r *rawQueryRepo) FindInRange(ctx context.Context, start, end time.Time) ([]*entity.RawSlowQuery, error) {
	funcName := "RawQueryRepository.FindInRange"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var rows []*entity.RawSlowQuery
	err := r.db.WithContext(ctx).
		Where("captured_at >= ? AND captured_at < ?", start, end).
		Order("captured_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return rows, nil
}

func (r *rawQueryRepo) FindAll(ctx context.Context) ([]*entity.RawSlowQuery, error) {
	funcName := "RawQueryRepository.FindAll"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var rows []*entity.RawSlowQuery
	err := r.db.WithContext(ctx).
		Order("captured_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return rows, nil
}

func (r *rawQueryRepo) LatestCapturedAt(ctx context.Context, dbType, host string) (time.Time, error) {
	funcName := "RawQueryRepository.LatestCapturedAt"
	if err := helper.CheckDeadline(ctx); err != nil {
		return time.Time{}, errwrap.Wrap(err, funcName)
	}

	var row entity.RawSlowQuery
	err := r.db.WithContext(ctx).
		Where("source_db_type = ? AND source_db_host = ?", dbType, host).
		Order("captured_at desc").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, errwrap.Wrap(err, funcName)
	}
	return row.CapturedAt, nil
}
