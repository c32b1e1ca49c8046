package entity

import "time"

// Source database types supported by the collectors.
const (
	DBTypeMySQL    = "mysql"
	DBTypePostgres = "postgres"
)

// RawSlowQuery lifecycle states. A row is created NEW by a collector and
// moved to ANALYZED or ERROR by the analyzer, terminal either way.
const (
	StatusNew      = "NEW"
	StatusAnalyzed = "ANALYZED"
	StatusError    = "ERROR"
)

// RawSlowQuery is one captured slow-statement instance (MySQL) or one
// aggregated pattern snapshot (PostgreSQL, where pg_stat_statements
// already groups executions by statement).
//
// DedupKey encodes the per-source uniqueness rule: for MySQL it hashes
// (source_db_type, source_db_host, fingerprint_hash, captured_at) so the
// same slow-log entry is never stored twice across overlapping poll
// windows; for PostgreSQL it hashes (source_db_type, source_db_host,
// fingerprint) since the source pre-aggregates executions.
type RawSlowQuery struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceDBType    string    `gorm:"size:16;not null;index" json:"source_db_type"`
	SourceDBHost    string    `gorm:"size:255;not null;index" json:"source_db_host"`
	Fingerprint     string    `gorm:"type:text;not null" json:"fingerprint"`
	FingerprintHash string    `gorm:"size:32;not null;index" json:"fingerprint_hash"`
	DedupKey        string    `gorm:"size:32;not null;uniqueIndex" json:"-"`
	FullSQL         string    `gorm:"type:text;not null" json:"full_sql"`
	DurationMs      float64   `json:"duration_ms"`
	RowsExamined    int64     `json:"rows_examined"`
	RowsReturned    int64     `json:"rows_returned"`
	CapturedAt      time.Time `gorm:"index" json:"captured_at"`

	// Plan is nil when EXPLAIN was skipped (non-SELECT) or failed.
	Plan *ExplainPlan `gorm:"serializer:json" json:"plan,omitempty"`

	Status string `gorm:"size:16;not null;default:NEW;index" json:"status"`

	// DatabaseConnectionID is nil only for legacy rows; such rows are never
	// visible through the read boundary until a migration backfills them.
	DatabaseConnectionID *int64 `gorm:"index" json:"database_connection_id"`
	TeamID               *int64 `json:"team_id"`
	OrganizationID       *int64 `json:"organization_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RawSlowQuery) TableName() string {
	return "raw_slow_queries"
}

// EfficiencyRatio is rows examined per row returned. Zero-return rows are
// treated as if a single row came back, so the ratio degrades to
// rows_examined rather than dividing by zero. This one policy is applied
// everywhere the ratio is computed.
func (q *RawSlowQuery) EfficiencyRatio() float64 {
	if q.RowsReturned <= 0 {
		return float64(q.RowsExamined)
	}
	return float64(q.RowsExamined) / float64(q.RowsReturned)
}
