package entity

import (
	"time"
)

// DailyMetric is a fully-recomputable per-day rollup over raw slow
// queries, keyed by (date, source type, source host, connection).
// Safe to drop and rebuild; the aggregator upserts by the key tuple.
type DailyMetric struct {
	ID                   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Date                 string `gorm:"size:10;not null;uniqueIndex:idx_daily_key" json:"date"` // YYYY-MM-DD
	SourceDBType         string `gorm:"size:16;not null;uniqueIndex:idx_daily_key" json:"source_db_type"`
	SourceDBHost         string `gorm:"size:255;not null;uniqueIndex:idx_daily_key" json:"source_db_host"`
	DatabaseConnectionID int64  `gorm:"not null;uniqueIndex:idx_daily_key;index" json:"database_connection_id"`

	QueryCount           int64   `json:"query_count"`
	DistinctFingerprints int64   `json:"distinct_fingerprints"`
	AvgDurationMs        float64 `json:"avg_duration_ms"`
	MinDurationMs        float64 `json:"min_duration_ms"`
	MaxDurationMs        float64 `json:"max_duration_ms"`
	P50DurationMs        float64 `json:"p50_duration_ms"`
	P95DurationMs        float64 `json:"p95_duration_ms"`
	P99DurationMs        float64 `json:"p99_duration_ms"`
	AvgEfficiencyRatio   float64 `json:"avg_efficiency_ratio"`
	HighImpactCount      int64   `json:"high_impact_count"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyMetric) TableName() string {
	return "daily_metrics"
}

// FingerprintMetric is a fully-recomputable per-pattern rollup, keyed by
// (fingerprint hash, source type, source host, connection).
type FingerprintMetric struct {
	ID                   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	FingerprintHash      string `gorm:"size:32;not null;uniqueIndex:idx_fp_key" json:"fingerprint_hash"`
	SourceDBType         string `gorm:"size:16;not null;uniqueIndex:idx_fp_key" json:"source_db_type"`
	SourceDBHost         string `gorm:"size:255;not null;uniqueIndex:idx_fp_key" json:"source_db_host"`
	DatabaseConnectionID int64  `gorm:"not null;uniqueIndex:idx_fp_key;index" json:"database_connection_id"`
	Fingerprint          string `gorm:"type:text;not null" json:"fingerprint"`

	ExecutionCount     int64     `json:"execution_count"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	AvgDurationMs      float64   `json:"avg_duration_ms"`
	MinDurationMs      float64   `json:"min_duration_ms"`
	MaxDurationMs      float64   `json:"max_duration_ms"`
	P95DurationMs      float64   `json:"p95_duration_ms"`
	AvgEfficiencyRatio float64   `json:"avg_efficiency_ratio"`

	// WorstImprovementLevel is the most severe level across all linked
	// analyses for this pattern; empty when nothing is analyzed yet.
	WorstImprovementLevel string `gorm:"size:16" json:"worst_improvement_level"`

	// RepresentativeQueryID points at one raw row (the slowest seen) for
	// UI drill-down.
	RepresentativeQueryID int64 `json:"representative_query_id"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FingerprintMetric) TableName() string {
	return "fingerprint_metrics"
}
