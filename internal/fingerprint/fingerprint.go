// Package fingerprint normalizes raw SQL text into stable, comparable
// patterns. Normalization is a pure function: the same query shape with
// different literal values always yields the same pattern and hash.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Kind classifies a statement by its leading verb.
type Kind string

const (
	KindSelect Kind = "SELECT"
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	KindDDL    Kind = "DDL"
	KindOther  Kind = "OTHER"
)

var (
	reSingleQuoted = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	reDoubleQuoted = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	reHexLiteral   = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reBindParam    = regexp.MustCompile(`\$\d+`)
	reNumber       = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	reWhitespace   = regexp.MustCompile(`\s+`)
	reInList       = regexp.MustCompile(`\(\s*\?(?:\s*,\s*\?)*\s*\)`)

	reTableRef = regexp.MustCompile("(?i)\\b(?:FROM|JOIN|UPDATE|INTO)\\s+[`\"]?([A-Za-z_][\\w$.]*)[`\"]?")
)

// Normalize strips string, numeric, and hex literals down to a single
// placeholder, collapses whitespace, and preserves keyword casing. The
// returned hash is the hex MD5 of the pattern: deterministic across
// processes and platforms, 128 bits wide.
func Normalize(sql string) (pattern, hash string) {
	pattern = reSingleQuoted.ReplaceAllString(sql, "?")
	pattern = reDoubleQuoted.ReplaceAllString(pattern, "?")
	pattern = reHexLiteral.ReplaceAllString(pattern, "?")
	pattern = reBindParam.ReplaceAllString(pattern, "?")
	pattern = reNumber.ReplaceAllString(pattern, "?")
	pattern = reInList.ReplaceAllString(pattern, "(?)")
	pattern = reWhitespace.ReplaceAllString(pattern, " ")
	pattern = strings.TrimSpace(pattern)

	sum := md5.Sum([]byte(pattern))
	return pattern, hex.EncodeToString(sum[:])
}

// ExtractTables scans for table names following FROM/JOIN/UPDATE/INTO.
// Best effort: subqueries yield no name, duplicates are removed, first
// occurrence order is preserved.
func ExtractTables(sql string) []string {
	matches := reTableRef.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var tables []string
	for _, m := range matches {
		name := m[1]
		if isKeyword(name) {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// ClassifyType returns the statement kind based on the first keyword.
func ClassifyType(sql string) Kind {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return KindOther
	}
	first := trimmed
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '(' }); i > 0 {
		first = trimmed[:i]
	}
	switch strings.ToUpper(first) {
	case "SELECT", "WITH":
		return KindSelect
	case "INSERT", "REPLACE":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME":
		return KindDDL
	default:
		return KindOther
	}
}

var reModifyingVerb = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|REPLACE|MERGE|CREATE|ALTER|DROP|TRUNCATE|GRANT|REVOKE)\b`)

// IsSafeToExplain is true only for plain single SELECTs. Statements with
// side effects must never reach an EXPLAIN path that could execute them:
// data-modifying CTEs, DDL hidden in compound statements, and anything
// with an interior semicolon are rejected. Verbs and semicolons are
// checked on literal-stripped text so string contents cannot trip or
// dodge the screen.
func IsSafeToExplain(sql string) bool {
	if ClassifyType(sql) != KindSelect {
		return false
	}
	stripped := reSingleQuoted.ReplaceAllString(sql, "?")
	stripped = reDoubleQuoted.ReplaceAllString(stripped, "?")
	stripped = strings.TrimRight(strings.TrimSpace(stripped), "; \t\n")
	if strings.Contains(stripped, ";") {
		return false
	}
	return !reModifyingVerb.MatchString(stripped)
}

// isKeyword filters out keywords that the table regex can capture when a
// subquery follows FROM, e.g. "FROM (SELECT ...".
func isKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "SELECT", "WHERE", "VALUES", "DUAL", "SET", "ONLY", "LATERAL":
		return true
	}
	return false
}
