// Package collector polls monitored MySQL and PostgreSQL targets for
// slow statements, fingerprints them, and hands them to the raw-query
// store. Collectors are read-only against the target except for EXPLAIN,
// which is only ever issued for statements IsSafeToExplain accepts.
package collector

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// Collector is the common contract for one monitored target. A single
// Collect call fails fast on connectivity trouble; the scheduler retries
// on its next tick, never inside the call.
type Collector interface {
	Name() string
	Collect(ctx context.Context) (stored, skipped int, err error)
	Close() error
}

// Options tunes a collector independently of its target connection.
type Options struct {
	BatchSize int
	// MinMeanDurationMs filters the PostgreSQL statistics view. Unused by
	// the MySQL collector, which takes whatever the slow log recorded.
	MinMeanDurationMs float64
	CallTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MinMeanDurationMs <= 0 {
		o.MinMeanDurationMs = 500
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	return o
}

// New opens a database/sql handle for the target and returns the
// dialect-appropriate collector.
func New(target *entity.DatabaseConnection, store RawQueryStore, opts Options, logger Logger) (Collector, error) {
	funcName := "collector.New"

	switch target.DBType {
	case entity.DBTypeMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			target.Username, target.Password, target.Host, target.Port, target.DatabaseName)
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, errwrap.Wrap(err, funcName)
		}
		tuneDB(db)
		return NewMySQLCollector(db, target, store, opts, logger), nil
	case entity.DBTypePostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			target.Host, target.Port, target.Username, target.Password, target.DatabaseName)
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, errwrap.Wrap(err, funcName)
		}
		tuneDB(db)
		return NewPostgresCollector(db, target, store, opts, logger), nil
	default:
		return nil, errwrap.Errorf("%s: unsupported db type %q", funcName, target.DBType)
	}
}

func tuneDB(db *sql.DB) {
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// RawQueryStore is the ingestion boundary the collectors write through.
type RawQueryStore interface {
	Store(ctx context.Context, row *entity.RawSlowQuery) (inserted bool, err error)
	UpsertSnapshot(ctx context.Context, row *entity.RawSlowQuery) (inserted bool, err error)
	LatestCapturedAt(ctx context.Context, dbType, host string) (time.Time, error)
}

// Logger is the narrow slice of zap the collectors need; it keeps them
// testable without a logger fixture.
type Logger interface {
	Warnf(template string, args ...interface{})
	Debugf(template string, args ...interface{})
}

// mysqlDedupKey implements the per-execution uniqueness rule: the same
// slow-log entry re-read across overlapping poll windows hashes to the
// same key.
func mysqlDedupKey(host, fingerprintHash string, capturedAt time.Time) string {
	raw := strings.Join([]string{
		entity.DBTypeMySQL, host, fingerprintHash,
		capturedAt.UTC().Format(time.RFC3339Nano),
	}, "|")
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// postgresDedupKey implements the per-pattern rule: one row per
// fingerprint per source, since pg_stat_statements pre-aggregates.
func postgresDedupKey(host, fingerprintHash string) string {
	raw := strings.Join([]string{entity.DBTypePostgres, host, fingerprintHash}, "|")
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
