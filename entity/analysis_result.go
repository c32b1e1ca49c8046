package entity

import "time"

// Improvement levels, ordered CRITICAL > HIGH > MEDIUM > LOW.
const (
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"
	LevelCritical = "CRITICAL"
)

// Analysis methods.
const (
	MethodRuleBased   = "RULE_BASED"
	MethodAIAugmented = "AI_AUGMENTED"
)

var levelRank = map[string]int{
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     3,
	LevelCritical: 4,
}

// LevelRank returns the severity rank of an improvement level, 0 for
// unknown values so they always lose a WorseLevel comparison.
func LevelRank(level string) int {
	return levelRank[level]
}

// WorseLevel returns the more severe of two improvement levels.
func WorseLevel(a, b string) string {
	if LevelRank(b) > LevelRank(a) {
		return b
	}
	return a
}

// Suggestion is a single actionable finding attached to an analysis.
type Suggestion struct {
	Type            string `json:"type"`
	Priority        string `json:"priority"`
	Description     string `json:"description"`
	SQL             string `json:"sql,omitempty"`
	EstimatedImpact string `json:"estimated_impact,omitempty"`
}

// AnalysisResult is owned 1:1 by a RawSlowQuery. Rows are immutable;
// re-analysis inserts a fresh row and the highest id supersedes prior
// ones logically.
type AnalysisResult struct {
	ID               int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	RawQueryID       int64        `gorm:"index;not null" json:"raw_query_id"`
	Problem          string       `gorm:"type:text" json:"problem"`
	RootCause        string       `gorm:"type:text" json:"root_cause"`
	Suggestions      []Suggestion `gorm:"serializer:json" json:"suggestions"`
	ImprovementLevel string       `gorm:"size:16;not null;index" json:"improvement_level"`
	EstimatedSpeedup string       `gorm:"size:64" json:"estimated_speedup"`
	Confidence       float64      `json:"confidence"`
	Method           string       `gorm:"size:16;not null" json:"method"`
	ModelProvider    string       `gorm:"size:64" json:"model_provider,omitempty"`
	Insights         []string     `gorm:"serializer:json" json:"insights,omitempty"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}
