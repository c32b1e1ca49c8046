// Package analyzer turns NEW raw slow queries into analysis results by
// evaluating their execution plans against a deterministic rule engine,
// optionally augmented by an external model call.
package analyzer

import (
	"context"

	errwrap "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/analyzer/ai"
	"github.com/rahmatrdn/go-query-insight/internal/helper"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
)

type Analyzer struct {
	rawRepo      sqlite.RawQueryRepository
	analysisRepo sqlite.AnalysisRepository
	provider     ai.Provider // nil disables augmentation
	thresholds   Thresholds
	logger       *zap.Logger
}

func New(rawRepo sqlite.RawQueryRepository, analysisRepo sqlite.AnalysisRepository, provider ai.Provider, thresholds Thresholds, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		rawRepo:      rawRepo,
		analysisRepo: analysisRepo,
		provider:     provider,
		thresholds:   thresholds.withDefaults(),
		logger:       logger,
	}
}

// AnalyzePending processes up to limit NEW rows oldest-first. Each row's
// outcome is independent: a failing row is marked ERROR and the batch
// continues. Cancellation is observed between rows, never mid-row.
func (a *Analyzer) AnalyzePending(ctx context.Context, limit int) (int, error) {
	funcName := "Analyzer.AnalyzePending"

	pending, err := a.rawRepo.FindPending(ctx, limit)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}

	analyzed := 0
	for _, row := range pending {
		if err := helper.CheckDeadline(ctx); err != nil {
			return analyzed, errwrap.Wrap(err, funcName)
		}

		if err := a.analyzeOne(ctx, row); err != nil {
			a.logger.Warn("row analysis failed",
				zap.Int64("raw_query_id", row.ID),
				zap.Error(err))
			if merr := a.rawRepo.UpdateStatus(ctx, row.ID, entity.StatusError); merr != nil {
				a.logger.Error("failed to mark row ERROR",
					zap.Int64("raw_query_id", row.ID),
					zap.Error(merr))
			}
			continue
		}
		analyzed++
	}

	return analyzed, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, row *entity.RawSlowQuery) error {
	funcName := "Analyzer.analyzeOne"

	result := evaluate(row, a.thresholds)
	a.augment(ctx, row, result)

	if err := a.analysisRepo.Create(ctx, result); err != nil {
		return errwrap.Wrap(err, funcName)
	}
	if err := a.rawRepo.UpdateStatus(ctx, row.ID, entity.StatusAnalyzed); err != nil {
		return errwrap.Wrap(err, funcName)
	}
	return nil
}

// augment merges a model response into the rule-based result. It is
// side-effect-free on failure: any error or timeout leaves the result
// exactly as the rule pass produced it, method RULE_BASED included.
func (a *Analyzer) augment(ctx context.Context, row *entity.RawSlowQuery, result *entity.AnalysisResult) {
	if a.provider == nil {
		return
	}

	resp, err := a.provider.AnalyzeWithModel(ctx, &ai.Request{
		SQL:        row.FullSQL,
		Plan:       row.Plan,
		DBType:     row.SourceDBType,
		DurationMs: row.DurationMs,
	})
	if err != nil {
		a.logger.Warn("model augmentation failed, keeping rule-based result",
			zap.Int64("raw_query_id", row.ID),
			zap.String("provider", a.provider.Name()),
			zap.Error(err))
		return
	}

	result.Method = entity.MethodAIAugmented
	result.ModelProvider = resp.ProviderName
	result.Insights = resp.Insights
	result.Suggestions = append(result.Suggestions, resp.Suggestions...)
	result.Confidence = (result.Confidence + resp.Confidence) / 2
	if result.Confidence > 0.95 {
		result.Confidence = 0.95
	}
}
