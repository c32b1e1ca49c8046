package collector

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
	"github.com/rahmatrdn/go-query-insight/internal/fingerprint"
)

const mysqlSlowLogQuery = `
SELECT start_time, CONVERT(sql_text USING utf8) AS sql_text, query_time, rows_examined, rows_sent
FROM mysql.slow_log
WHERE start_time > ?
ORDER BY start_time ASC
LIMIT ?`

const mysqlExplainColumns = 12 // tabular EXPLAIN since 5.7

// MySQLCollector reads the slow-query log table of one MySQL target.
// Each log entry becomes one RawSlowQuery; duplicates across overlapping
// poll windows are dropped by the store's dedup key.
type MySQLCollector struct {
	db     *sql.DB
	target *entity.DatabaseConnection
	store  RawQueryStore
	opts   Options
	logger Logger
}

func NewMySQLCollector(db *sql.DB, target *entity.DatabaseConnection, store RawQueryStore, opts Options, logger Logger) *MySQLCollector {
	return &MySQLCollector{
		db:     db,
		target: target,
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func (c *MySQLCollector) Name() string {
	return "mysql:" + c.target.Host
}

func (c *MySQLCollector) Close() error {
	return c.db.Close()
}

func (c *MySQLCollector) Collect(ctx context.Context) (int, int, error) {
	funcName := "MySQLCollector.Collect"

	since, err := c.store.LatestCapturedAt(ctx, entity.DBTypeMySQL, c.target.Host)
	if err != nil {
		return 0, 0, errwrap.Wrap(err, funcName)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(callCtx, mysqlSlowLogQuery, since, c.opts.BatchSize)
	if err != nil {
		return 0, 0, errwrap.Wrap(err, funcName)
	}
	defer rows.Close()

	type slowLogEntry struct {
		startTime    time.Time
		sqlText      string
		durationMs   float64
		rowsExamined int64
		rowsSent     int64
	}

	var entries []slowLogEntry
	for rows.Next() {
		var (
			startTime time.Time
			sqlText   sql.RawBytes
			queryTime string
			examined  int64
			sent      int64
		)
		if err := rows.Scan(&startTime, &sqlText, &queryTime, &examined, &sent); err != nil {
			return 0, 0, errwrap.Wrap(err, funcName)
		}
		entries = append(entries, slowLogEntry{
			startTime:    startTime,
			sqlText:      string(sqlText),
			durationMs:   parseQueryTimeMs(queryTime),
			rowsExamined: examined,
			rowsSent:     sent,
		})
	}
	if err := rows.Err(); err != nil {
		return 0, 0, errwrap.Wrap(err, funcName)
	}

	var stored, skipped int
	for _, e := range entries {
		pattern, hash := fingerprint.Normalize(e.sqlText)
		if pattern == "" {
			skipped++
			continue
		}

		var plan *entity.ExplainPlan
		if fingerprint.IsSafeToExplain(e.sqlText) {
			plan = c.explain(ctx, e.sqlText)
		}

		connID := c.target.ID
		teamID := c.target.TeamID
		orgID := c.target.OrganizationID
		row := &entity.RawSlowQuery{
			SourceDBType:         entity.DBTypeMySQL,
			SourceDBHost:         c.target.Host,
			Fingerprint:          pattern,
			FingerprintHash:      hash,
			DedupKey:             mysqlDedupKey(c.target.Host, hash, e.startTime),
			FullSQL:              e.sqlText,
			DurationMs:           e.durationMs,
			RowsExamined:         e.rowsExamined,
			RowsReturned:         e.rowsSent,
			CapturedAt:           e.startTime,
			Plan:                 plan,
			Status:               entity.StatusNew,
			DatabaseConnectionID: &connID,
			TeamID:               &teamID,
			OrganizationID:       &orgID,
		}

		inserted, err := c.store.Store(ctx, row)
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

// explain runs tabular EXPLAIN for a safe SELECT. Failures are swallowed
// and logged; the row is stored without a plan.
func (c *MySQLCollector) explain(ctx context.Context, sqlText string) *entity.ExplainPlan {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(callCtx, "EXPLAIN "+sqlText)
	if err != nil {
		c.logger.Warnf("mysql explain failed on %s: %v", c.target.Host, err)
		return nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil || len(cols) < mysqlExplainColumns {
		c.logger.Warnf("mysql explain returned unexpected shape on %s", c.target.Host)
		return nil
	}

	plan := &entity.MySQLPlan{}
	for rows.Next() {
		var (
			id, rowEstimate                                        sql.NullInt64
			selectType, table, partitions, accessType              sql.NullString
			possibleKeys, key, keyLen, ref, extra                  sql.NullString
			filtered                                               sql.NullFloat64
		)
		if err := rows.Scan(&id, &selectType, &table, &partitions, &accessType,
			&possibleKeys, &key, &keyLen, &ref, &rowEstimate, &filtered, &extra); err != nil {
			c.logger.Warnf("mysql explain scan failed on %s: %v", c.target.Host, err)
			return nil
		}
		plan.Rows = append(plan.Rows, entity.MySQLPlanRow{
			SelectType:   selectType.String,
			Table:        table.String,
			AccessType:   accessType.String,
			PossibleKeys: possibleKeys.String,
			Key:          key.String,
			Ref:          ref.String,
			Rows:         rowEstimate.Int64,
			Filtered:     filtered.Float64,
			Extra:        extra.String,
		})
	}
	if err := rows.Err(); err != nil {
		c.logger.Warnf("mysql explain iteration failed on %s: %v", c.target.Host, err)
		return nil
	}
	if len(plan.Rows) == 0 {
		return nil
	}

	return &entity.ExplainPlan{SourceDBType: entity.DBTypeMySQL, MySQL: plan}
}

// parseQueryTimeMs converts the slow log's TIME-typed query_time
// ("HH:MM:SS.ffffff") to milliseconds.
func parseQueryTimeMs(s string) float64 {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0
	}
	hours, _ := strconv.ParseFloat(parts[0], 64)
	minutes, _ := strconv.ParseFloat(parts[1], 64)
	seconds, _ := strconv.ParseFloat(parts[2], 64)
	return (hours*3600 + minutes*60 + seconds) * 1000
}
