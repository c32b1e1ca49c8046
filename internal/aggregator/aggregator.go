// Package aggregator recomputes the daily and per-fingerprint rollups
// from the raw query store and analysis results. Both operations are
// upserts keyed by their grouping tuple: re-running over unchanged
// inputs rewrites identical rows.
package aggregator

import (
	"context"
	"sort"
	"time"

	errwrap "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/repository/sqlite"
)

type Aggregator struct {
	rawRepo      sqlite.RawQueryRepository
	analysisRepo sqlite.AnalysisRepository
	metricsRepo  sqlite.MetricsRepository
	logger       *zap.Logger
}

func New(rawRepo sqlite.RawQueryRepository, analysisRepo sqlite.AnalysisRepository, metricsRepo sqlite.MetricsRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		rawRepo:      rawRepo,
		analysisRepo: analysisRepo,
		metricsRepo:  metricsRepo,
		logger:       logger,
	}
}

type dailyKey struct {
	date   string
	dbType string
	host   string
	connID int64
}

type fingerprintKey struct {
	hash   string
	dbType string
	host   string
	connID int64
}

// AggregateDaily recomputes per-day rollups for rows captured in
// [startDate, endDate). Rows without a connection id are excluded from
// rollups entirely; they are invisible until backfilled.
func (a *Aggregator) AggregateDaily(ctx context.Context, startDate, endDate time.Time) (int64, error) {
	funcName := "Aggregator.AggregateDaily"

	rows, err := a.rawRepo.FindInRange(ctx, startDate, endDate)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}

	groups := make(map[dailyKey][]*entity.RawSlowQuery)
	var ids []int64
	for _, row := range rows {
		if row.DatabaseConnectionID == nil {
			continue
		}
		key := dailyKey{
			date:   row.CapturedAt.UTC().Format("2006-01-02"),
			dbType: row.SourceDBType,
			host:   row.SourceDBHost,
			connID: *row.DatabaseConnectionID,
		}
		groups[key] = append(groups[key], row)
		ids = append(ids, row.ID)
	}

	analyses, err := a.analysisRepo.FindLatestByRawQueryIDs(ctx, ids)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}

	keys := make([]dailyKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	// Stable write order keeps reruns byte-identical.
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		if keys[i].host != keys[j].host {
			return keys[i].host < keys[j].host
		}
		return keys[i].connID < keys[j].connID
	})

	metrics := make([]*entity.DailyMetric, 0, len(keys))
	for _, key := range keys {
		group := groups[key]

		durations := make([]float64, 0, len(group))
		fingerprints := make(map[string]struct{})
		var ratioSum float64
		var highImpact int64
		for _, row := range group {
			durations = append(durations, row.DurationMs)
			fingerprints[row.FingerprintHash] = struct{}{}
			ratioSum += row.EfficiencyRatio()
			if res, ok := analyses[row.ID]; ok && entity.LevelRank(res.ImprovementLevel) >= entity.LevelRank(entity.LevelHigh) {
				highImpact++
			}
		}
		sort.Float64s(durations)

		metrics = append(metrics, &entity.DailyMetric{
			Date:                 key.date,
			SourceDBType:         key.dbType,
			SourceDBHost:         key.host,
			DatabaseConnectionID: key.connID,
			QueryCount:           int64(len(group)),
			DistinctFingerprints: int64(len(fingerprints)),
			AvgDurationMs:        mean(durations),
			MinDurationMs:        durations[0],
			MaxDurationMs:        durations[len(durations)-1],
			P50DurationMs:        percentile(durations, 50),
			P95DurationMs:        percentile(durations, 95),
			P99DurationMs:        percentile(durations, 99),
			AvgEfficiencyRatio:   ratioSum / float64(len(group)),
			HighImpactCount:      highImpact,
		})
	}

	written, err := a.metricsRepo.UpsertDaily(ctx, metrics)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}
	a.logger.Debug("daily aggregation complete", zap.Int64("rows_written", written))
	return written, nil
}

// AggregateByFingerprint recomputes per-pattern rollups over the whole
// store.
func (a *Aggregator) AggregateByFingerprint(ctx context.Context) (int64, error) {
	funcName := "Aggregator.AggregateByFingerprint"

	rows, err := a.rawRepo.FindAll(ctx)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}

	groups := make(map[fingerprintKey][]*entity.RawSlowQuery)
	var ids []int64
	for _, row := range rows {
		if row.DatabaseConnectionID == nil {
			continue
		}
		key := fingerprintKey{
			hash:   row.FingerprintHash,
			dbType: row.SourceDBType,
			host:   row.SourceDBHost,
			connID: *row.DatabaseConnectionID,
		}
		groups[key] = append(groups[key], row)
		ids = append(ids, row.ID)
	}

	analyses, err := a.analysisRepo.FindLatestByRawQueryIDs(ctx, ids)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}

	keys := make([]fingerprintKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hash != keys[j].hash {
			return keys[i].hash < keys[j].hash
		}
		if keys[i].host != keys[j].host {
			return keys[i].host < keys[j].host
		}
		return keys[i].connID < keys[j].connID
	})

	metrics := make([]*entity.FingerprintMetric, 0, len(keys))
	for _, key := range keys {
		group := groups[key]

		durations := make([]float64, 0, len(group))
		firstSeen := group[0].CapturedAt
		lastSeen := group[0].CapturedAt
		var ratioSum float64
		var worstLevel string
		representative := group[0]
		for _, row := range group {
			durations = append(durations, row.DurationMs)
			if row.CapturedAt.Before(firstSeen) {
				firstSeen = row.CapturedAt
			}
			if row.CapturedAt.After(lastSeen) {
				lastSeen = row.CapturedAt
			}
			ratioSum += row.EfficiencyRatio()
			if res, ok := analyses[row.ID]; ok {
				worstLevel = entity.WorseLevel(worstLevel, res.ImprovementLevel)
			}
			if row.DurationMs > representative.DurationMs {
				representative = row
			}
		}
		sort.Float64s(durations)

		metrics = append(metrics, &entity.FingerprintMetric{
			FingerprintHash:       key.hash,
			SourceDBType:          key.dbType,
			SourceDBHost:          key.host,
			DatabaseConnectionID:  key.connID,
			Fingerprint:           group[0].Fingerprint,
			ExecutionCount:        int64(len(group)),
			FirstSeen:             firstSeen,
			LastSeen:              lastSeen,
			AvgDurationMs:         mean(durations),
			MinDurationMs:         durations[0],
			MaxDurationMs:         durations[len(durations)-1],
			P95DurationMs:         percentile(durations, 95),
			AvgEfficiencyRatio:    ratioSum / float64(len(group)),
			WorstImprovementLevel: worstLevel,
			RepresentativeQueryID: representative.ID,
		})
	}

	written, err := a.metricsRepo.UpsertFingerprint(ctx, metrics)
	if err != nil {
		return 0, errwrap.Wrap(err, funcName)
	}
	a.logger.Debug("fingerprint aggregation complete", zap.Int64("rows_written", written))
	return written, nil
}

// percentile uses linear interpolation between closest ranks over an
// ascending-sorted slice. This is the one percentile definition used by
// every rollup, so reruns are reproducible.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
