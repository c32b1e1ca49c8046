package sqlite

import (
	"context"

	errwrap "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/helper"
)

type AnalysisRepository interface {
	Create(ctx context.Context, result *entity.AnalysisResult) error
	// FindLatestByRawQueryID returns the superseding (highest-id) result
	// for one raw row, nil when none exists.
	FindLatestByRawQueryID(ctx context.Context, rawQueryID int64) (*entity.AnalysisResult, error)
	// FindLatestByRawQueryIDs returns the superseding result per raw row
	// id, for aggregation over many rows at once.
	FindLatestByRawQueryIDs(ctx context.Context, rawQueryIDs []int64) (map[int64]*entity.AnalysisResult, error)
}

type analysisRepo struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepo{db: db}
}

func (r *analysisRepo) Create(ctx context.Context, result *entity.AnalysisResult) error {
	funcName := "AnalysisRepository.Create"
	if err := helper.CheckDeadline(ctx); err != nil {
		return errwrap.Wrap(err, funcName)
	}

	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

func (r *analysisRepo) FindLatestByRawQueryID(ctx context.Context, rawQueryID int64) (*entity.AnalysisResult, error) {
	funcName := "AnalysisRepository.FindLatestByRawQueryID"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var result entity.AnalysisResult
	err := r.db.WithContext(ctx).
		Where("raw_query_id = ?", rawQueryID).
		Order("id desc").
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errwrap.Wrap(err, funcName)
	}
	return &result, nil
}

func (r *analysisRepo) FindLatestByRawQueryIDs(ctx context.Context, rawQueryIDs []int64) (map[int64]*entity.AnalysisResult, error) {
	funcName := "AnalysisRepository.FindLatestByRawQueryIDs"
	if err := helper.CheckDeadline(ctx); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	if len(rawQueryIDs) == 0 {
		return map[int64]*entity.AnalysisResult{}, nil
	}

	var results []*entity.AnalysisResult
	err := r.db.WithContext(ctx).
		Where("raw_query_id IN (?)", rawQueryIDs).
		Order("id asc").
		Find(&results).Error
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	// Ascending id order means the last write per raw row wins.
	latest := make(map[int64]*entity.AnalysisResult, len(results))
	for _, res := range results {
		latest[res.RawQueryID] = res
	}
	return latest, nil
}
