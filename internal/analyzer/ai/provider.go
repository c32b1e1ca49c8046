// Package ai models the external LLM capability consumed by the
// analyzer as a single narrow interface. Provider selection happens once
// at construction time; the analyzer never knows which backend it talks
// to, and a failed call never affects the rule-based result.
package ai

import (
	"context"
	"time"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// Request carries everything a backend may use to reason about a query.
type Request struct {
	SQL        string
	Plan       *entity.ExplainPlan
	DBType     string
	DurationMs float64
}

// Response is the augmentation payload merged into a rule-based result.
type Response struct {
	Insights     []string
	Suggestions  []entity.Suggestion
	Confidence   float64
	ProviderName string
}

// Provider is the one capability the analyzer depends on.
type Provider interface {
	Name() string
	AnalyzeWithModel(ctx context.Context, req *Request) (*Response, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider string // none | stub | openai
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the configured provider. Provider "none" returns nil; the
// analyzer treats a nil provider as augmentation disabled.
func New(cfg Config) (Provider, error) {
	funcName := "ai.New"

	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "stub":
		return &StubProvider{}, nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, errwrap.Errorf("%s: unknown provider %q", funcName, cfg.Provider)
	}
}
