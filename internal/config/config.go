package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	errwrap "github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// Config carries all process configuration, loaded from the environment
// with an optional .env file on top.
type Config struct {
	AppPort   string `env:"APP_PORT,default=8090"`
	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	StorePath string `env:"STORE_PATH,default=query_insight.db" validate:"required"`
	JWTSecret string `env:"JWT_SECRET,default=insecure-dev-secret" validate:"required"`

	CollectInterval   time.Duration `env:"COLLECT_INTERVAL,default=5m" validate:"min=1s"`
	AnalyzeInterval   time.Duration `env:"ANALYZE_INTERVAL,default=10m" validate:"min=1s"`
	AggregateInterval time.Duration `env:"AGGREGATE_INTERVAL,default=15m" validate:"min=1s"`

	CollectBatchSize  int           `env:"COLLECT_BATCH_SIZE,default=100" validate:"min=1,max=1000"`
	AnalyzeBatchSize  int           `env:"ANALYZE_BATCH_SIZE,default=50" validate:"min=1,max=1000"`
	TargetCallTimeout time.Duration `env:"TARGET_CALL_TIMEOUT,default=30s" validate:"min=1s"`

	// PGMinMeanDurationMs filters pg_stat_statements to statements whose
	// mean execution time is at least this many milliseconds.
	PGMinMeanDurationMs float64 `env:"PG_MIN_MEAN_DURATION_MS,default=500"`

	// Analyzer thresholds.
	RowsExaminedThreshold int64   `env:"ROWS_EXAMINED_THRESHOLD,default=100000"`
	PlannerCostThreshold  float64 `env:"PLANNER_COST_THRESHOLD,default=10000"`
	HardDurationCeilingMs float64 `env:"HARD_DURATION_CEILING_MS,default=5000"`

	// Model augmentation. Provider "none" disables the augmentation pass.
	AIProvider string        `env:"AI_PROVIDER,default=none" validate:"oneof=none stub openai"`
	AIEndpoint string        `env:"AI_ENDPOINT,default=https://api.openai.com/v1/chat/completions"`
	AIAPIKey   string        `env:"AI_API_KEY,default="`
	AIModel    string        `env:"AI_MODEL,default=gpt-4o-mini"`
	AITimeout  time.Duration `env:"AI_TIMEOUT,default=20s" validate:"min=1s"`
}

// Load reads .env (if present), decodes the environment, and validates
// the result.
func Load() (*Config, error) {
	funcName := "config.Load"

	_ = gotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	return &cfg, nil
}
