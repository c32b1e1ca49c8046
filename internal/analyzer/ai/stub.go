package ai

import (
	"context"
	"fmt"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// StubProvider is a deterministic local backend used in development and
// tests. It never fails and derives its output from the request alone.
type StubProvider struct{}

func (s *StubProvider) Name() string {
	return "stub"
}

func (s *StubProvider) AnalyzeWithModel(_ context.Context, req *Request) (*Response, error) {
	resp := &Response{
		Confidence:   0.75,
		ProviderName: s.Name(),
	}

	if scans := req.Plan.FullScans(); len(scans) > 0 {
		resp.Insights = append(resp.Insights,
			fmt.Sprintf("table %s is read in full; the filter columns are prime index candidates", scans[0].Table))
	}
	if req.DurationMs > 1000 {
		resp.Insights = append(resp.Insights,
			fmt.Sprintf("at %.0fms per execution this query dominates its workload window", req.DurationMs))
		resp.Suggestions = append(resp.Suggestions, entity.Suggestion{
			Type:        "REVIEW",
			Priority:    "MEDIUM",
			Description: "Consider caching this result or moving it off the hot path.",
		})
	}
	if len(resp.Insights) == 0 {
		resp.Insights = append(resp.Insights, "no additional findings beyond the rule-based analysis")
	}

	return resp, nil
}
