package usecase

import (
	"context"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
	"github.com/rahmatrdn/go-query-insight/internal/visibility"
)

// ErrNotVisible hides both missing rows and rows outside the caller's
// scope behind one answer, so the API leaks no existence information.
var ErrNotVisible = errwrap.New("slow query not found")

// SlowQueryDetail pairs a raw row with its superseding analysis.
type SlowQueryDetail struct {
	Query    *entity.RawSlowQuery   `json:"query"`
	Analysis *entity.AnalysisResult `json:"analysis,omitempty"`
}

// ListParams narrows a slow-query listing.
type ListParams struct {
	SourceDBType    string
	Status          string
	FingerprintHash string
	Limit           int
	Offset          int
}

// QueryUsecase serves the read boundary. Every method resolves the
// caller's visible connection set first and passes it down; repositories
// never run an unscoped read.
type QueryUsecase struct {
	rawRepo      sqlite.RawQueryRepository
	analysisRepo sqlite.AnalysisRepository
	metricsRepo  sqlite.MetricsRepository
	gate         *visibility.Gate
}

func NewQueryUsecase(
	rawRepo sqlite.RawQueryRepository,
	analysisRepo sqlite.AnalysisRepository,
	metricsRepo sqlite.MetricsRepository,
	gate *visibility.Gate,
) *QueryUsecase {
	return &QueryUsecase{
		rawRepo:      rawRepo,
		analysisRepo: analysisRepo,
		metricsRepo:  metricsRepo,
		gate:         gate,
	}
}

func (u *QueryUsecase) ListSlowQueries(ctx context.Context, userID int64, params ListParams) ([]*entity.RawSlowQuery, error) {
	visible, err := u.gate.VisibleConnectionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return []*entity.RawSlowQuery{}, nil
	}

	return u.rawRepo.List(ctx, sqlite.ListFilter{
		VisibleConnectionIDs: visible,
		SourceDBType:         params.SourceDBType,
		Status:               params.Status,
		FingerprintHash:      params.FingerprintHash,
		Limit:                params.Limit,
		Offset:               params.Offset,
	})
}

func (u *QueryUsecase) GetSlowQueryDetail(ctx context.Context, userID, queryID int64) (*SlowQueryDetail, error) {
	visible, err := u.gate.VisibleConnectionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return nil, ErrNotVisible
	}

	row, err := u.rawRepo.FindByID(ctx, queryID, visible)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotVisible
	}

	analysis, err := u.analysisRepo.FindLatestByRawQueryID(ctx, row.ID)
	if err != nil {
		return nil, err
	}

	return &SlowQueryDetail{Query: row, Analysis: analysis}, nil
}

func (u *QueryUsecase) DailyMetrics(ctx context.Context, userID int64, fromDate, toDate string) ([]*entity.DailyMetric, error) {
	visible, err := u.gate.VisibleConnectionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return []*entity.DailyMetric{}, nil
	}
	return u.metricsRepo.ListDaily(ctx, visible, fromDate, toDate)
}

func (u *QueryUsecase) FingerprintMetrics(ctx context.Context, userID int64, limit int) ([]*entity.FingerprintMetric, error) {
	visible, err := u.gate.VisibleConnectionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return []*entity.FingerprintMetric{}, nil
	}
	return u.metricsRepo.ListFingerprints(ctx, visible, limit)
}
