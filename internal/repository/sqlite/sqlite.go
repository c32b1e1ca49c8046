package sqlite

import (
	errwrap "github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// Open opens (or creates) the local store and migrates its schema. The
// dedup unique index on raw_slow_queries is what makes collector writes
// race-free without application-level locking.
func Open(path string) (*gorm.DB, error) {
	funcName := "sqlite.Open"

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	if err := db.AutoMigrate(
		&entity.RawSlowQuery{},
		&entity.AnalysisResult{},
		&entity.DailyMetric{},
		&entity.FingerprintMetric{},
		&entity.DatabaseConnection{},
		&entity.TeamMember{},
		&entity.OrgMember{},
	); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	return db, nil
}
