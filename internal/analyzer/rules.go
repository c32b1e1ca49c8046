package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rahmatrdn/go-query-insight/entity"
)

// Thresholds parameterize the deterministic rule pass.
type Thresholds struct {
	RowsExamined    int64   // plan rows / rows_examined above this is at least MEDIUM
	PlannerCost     float64 // planner cost above this is at least MEDIUM
	DurationCeiling float64 // ms; above this the row is at least HIGH regardless of ratio
}

func (t Thresholds) withDefaults() Thresholds {
	if t.RowsExamined <= 0 {
		t.RowsExamined = 100000
	}
	if t.PlannerCost <= 0 {
		t.PlannerCost = 10000
	}
	if t.DurationCeiling <= 0 {
		t.DurationCeiling = 5000
	}
	return t
}

// nearZeroRows: full scans over tables this small are not worth an index.
const nearZeroRows = 100

var reOrderBy = regexp.MustCompile(`(?is)\bORDER\s+BY\s+(.+?)(?:\bLIMIT\b|\bOFFSET\b|\bFOR\s+UPDATE\b|;|$)`)

// evaluate runs the rule pass over one raw row. Rules fire in precedence
// order: the first high-severity match fixes the improvement level while
// every matched finding is retained as a suggestion.
func evaluate(row *entity.RawSlowQuery, t Thresholds) *entity.AnalysisResult {
	t = t.withDefaults()

	result := &entity.AnalysisResult{
		RawQueryID:       row.ID,
		ImprovementLevel: entity.LevelLow,
		Method:           entity.MethodRuleBased,
	}

	planAvailable := row.Plan != nil

	if planAvailable {
		// Rule 1: full/sequential scan on a table with a meaningful row count.
		for _, scan := range row.Plan.FullScans() {
			if scan.Rows < nearZeroRows {
				continue
			}
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelHigh)
			if result.Problem == "" {
				result.Problem = fmt.Sprintf("Full table scan over %q (~%d rows)", scan.Table, scan.Rows)
				result.RootCause = "No usable index covers the filter columns, so the whole table is read per execution."
				result.EstimatedSpeedup = "10-100x"
			}
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:            "ADD_INDEX",
				Priority:        entity.LevelHigh,
				Description:     fmt.Sprintf("Add an index on the filter columns of %q to avoid the full scan.", scan.Table),
				SQL:             fmt.Sprintf("CREATE INDEX idx_%s_filter ON %s (/* filter columns */);", sanitizeIdent(scan.Table), scan.Table),
				EstimatedImpact: "10-100x",
			})
		}

		// Rule 2: sort without index support.
		if row.Plan.HasUnindexedSort() {
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelMedium)
			cols := orderByColumns(row.FullSQL)
			desc := "Add an index covering the ORDER BY columns so the sort is served from the index."
			if cols != "" {
				desc = fmt.Sprintf("Add an index covering ORDER BY (%s) so the sort is served from the index.", cols)
			}
			if result.Problem == "" {
				result.Problem = "Result set is sorted without index support"
				result.RootCause = "The ORDER BY cannot be satisfied by an index, forcing an explicit sort pass."
				result.EstimatedSpeedup = "2-5x"
			}
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:            "ADD_INDEX",
				Priority:        entity.LevelMedium,
				Description:     desc,
				EstimatedImpact: "2-5x",
			})
		}

		// Rule 3: planner estimates above the configured ceilings.
		if rows := row.Plan.EstimatedRows(); rows > t.RowsExamined {
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelMedium)
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:        "REDUCE_SCOPE",
				Priority:    entity.LevelMedium,
				Description: fmt.Sprintf("The plan touches ~%d rows; tighten the predicates or add covering indexes.", rows),
			})
		}
		if cost := row.Plan.EstimatedCost(); cost > t.PlannerCost {
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelMedium)
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:        "REDUCE_SCOPE",
				Priority:    entity.LevelMedium,
				Description: fmt.Sprintf("Planner cost %.0f exceeds the %.0f threshold.", cost, t.PlannerCost),
			})
		}
	}

	if !planAvailable {
		// Rule 4: heuristic fallback on the execution counters, only when no
		// plan exists at all (non-SELECT or EXPLAIN failed). A clean plan is
		// a verdict in itself, not a reason to fall through.
		ratio := row.EfficiencyRatio()
		switch {
		case ratio > 100:
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelHigh)
		case ratio > 10:
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelMedium)
		}
		if ratio > 10 {
			if result.Problem == "" {
				result.Problem = fmt.Sprintf("Examines %.0f rows per row returned", ratio)
				result.RootCause = "The query reads far more rows than it returns, pointing at missing or unselective indexes."
				result.EstimatedSpeedup = "2-50x"
			}
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:        "ADD_INDEX",
				Priority:    result.ImprovementLevel,
				Description: fmt.Sprintf("Rows examined/returned ratio is %.0f; index the predicate columns of: %s", ratio, firstLine(row.Fingerprint)),
			})
		}

		if row.DurationMs > t.DurationCeiling {
			result.ImprovementLevel = entity.WorseLevel(result.ImprovementLevel, entity.LevelHigh)
			result.Suggestions = append(result.Suggestions, entity.Suggestion{
				Type:        "INVESTIGATE",
				Priority:    entity.LevelHigh,
				Description: fmt.Sprintf("Execution took %.0fms, above the %.0fms ceiling.", row.DurationMs, t.DurationCeiling),
			})
		}

		if result.Problem == "" {
			result.Problem = "No dominant inefficiency detected"
			result.RootCause = "Counters stay within normal bounds; the statement may simply be large or lock-bound."
		}
	}

	result.Confidence = confidence(planAvailable, len(result.Suggestions))
	return result
}

// confidence: 0.85-0.90 when a plan was available, 0.70-0.80 for
// heuristic-only, growing slightly with corroborating findings.
func confidence(planAvailable bool, findings int) float64 {
	if planAvailable {
		c := 0.85 + 0.01*float64(findings)
		if c > 0.90 {
			c = 0.90
		}
		return c
	}
	c := 0.70 + 0.02*float64(findings)
	if c > 0.80 {
		c = 0.80
	}
	return c
}

func orderByColumns(sqlText string) string {
	m := reOrderBy.FindStringSubmatch(sqlText)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Join(strings.Fields(m[1]), " "))
}

var reNonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeIdent(s string) string {
	return reNonIdent.ReplaceAllString(s, "_")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
