package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/fingerprint"
)

const postgresStatQuery = `
SELECT d.datname,
       s.query,
       s.calls,
       s.mean_exec_time,
       s.rows,
       s.shared_blks_hit + s.shared_blks_read AS blocks_touched
FROM pg_stat_statements s
JOIN pg_database d ON d.oid = s.dbid
WHERE s.mean_exec_time >= $1
  AND d.datname NOT IN ('template0', 'template1')
  AND s.query NOT ILIKE '%pg_catalog%'
  AND s.query NOT ILIKE '%pg_stat%'
  AND s.query NOT ILIKE '%information_schema%'
ORDER BY s.mean_exec_time DESC
LIMIT $2`

// PostgresCollector reads pg_stat_statements of one PostgreSQL target.
// The view pre-aggregates executions per statement, so one snapshot row
// is upserted per fingerprint rather than one row per execution.
type PostgresCollector struct {
	db     *sql.DB
	target *entity.DatabaseConnection
	store  RawQueryStore
	opts   Options
	logger Logger
}

func NewPostgresCollector(db *sql.DB, target *entity.DatabaseConnection, store RawQueryStore, opts Options, logger Logger) *PostgresCollector {
	return &PostgresCollector{
		db:     db,
		target: target,
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func (c *PostgresCollector) Name() string {
	return "postgres:" + c.target.Host
}

func (c *PostgresCollector) Close() error {
	return c.db.Close()
}

func (c *PostgresCollector) Collect(ctx context.Context) (int, int, error) {
	funcName := "PostgresCollector.Collect"

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(callCtx, postgresStatQuery, c.opts.MinMeanDurationMs, c.opts.BatchSize)
	if err != nil {
		return 0, 0, errwrap.Wrap(err, funcName)
	}
	defer rows.Close()

	type statEntry struct {
		query         string
		calls         int64
		meanExecMs    float64
		totalRows     int64
		blocksTouched int64
	}

	var entries []statEntry
	for rows.Next() {
		var (
			datname string
			e       statEntry
		)
		if err := rows.Scan(&datname, &e.query, &e.calls, &e.meanExecMs, &e.totalRows, &e.blocksTouched); err != nil {
			return 0, 0, errwrap.Wrap(err, funcName)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, errwrap.Wrap(err, funcName)
	}

	now := time.Now().UTC()

	var stored, skipped int
	for _, e := range entries {
		pattern, hash := fingerprint.Normalize(e.query)
		if pattern == "" {
			skipped++
			continue
		}

		calls := e.calls
		if calls <= 0 {
			calls = 1
		}

		var plan *entity.ExplainPlan
		// pg_stat_statements normalizes literals to $n placeholders; such
		// statements cannot be explained without bind values.
		if fingerprint.IsSafeToExplain(e.query) && !strings.Contains(e.query, "$1") {
			plan = c.explain(ctx, e.query)
		}

		connID := c.target.ID
		teamID := c.target.TeamID
		orgID := c.target.OrganizationID
		row := &entity.RawSlowQuery{
			SourceDBType:         entity.DBTypePostgres,
			SourceDBHost:         c.target.Host,
			Fingerprint:          pattern,
			FingerprintHash:      hash,
			DedupKey:             postgresDedupKey(c.target.Host, hash),
			FullSQL:              e.query,
			DurationMs:           e.meanExecMs,
			// The view has no rows-examined counter; shared-buffer blocks
			// touched per call stand in, so for postgres rows the efficiency
			// ratio reads blocks-per-row-returned.
			RowsExamined:         e.blocksTouched / calls,
			RowsReturned:         e.totalRows / calls,
			CapturedAt:           now,
			Plan:                 plan,
			Status:               entity.StatusNew,
			DatabaseConnectionID: &connID,
			TeamID:               &teamID,
			OrganizationID:       &orgID,
		}

		inserted, err := c.store.UpsertSnapshot(ctx, row)
		if err != nil {
			return stored, skipped, errwrap.Wrap(err, funcName)
		}
		if inserted {
			stored++
		} else {
			skipped++
		}
	}

	return stored, skipped, nil
}

// explain runs EXPLAIN (FORMAT JSON) for a safe, fully-literal SELECT.
// Failures are swallowed and logged; the snapshot is stored planless.
func (c *PostgresCollector) explain(ctx context.Context, query string) *entity.ExplainPlan {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var raw string
	if err := c.db.QueryRowContext(callCtx, "EXPLAIN (FORMAT JSON) "+query).Scan(&raw); err != nil {
		c.logger.Warnf("postgres explain failed on %s: %v", c.target.Host, err)
		return nil
	}

	var parsed []entity.PostgresPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed) == 0 {
		c.logger.Warnf("postgres explain output unparseable on %s", c.target.Host)
		return nil
	}

	return &entity.ExplainPlan{SourceDBType: entity.DBTypePostgres, Postgres: &parsed[0]}
}
