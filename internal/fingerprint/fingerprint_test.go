package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIsPure(t *testing.T) {
	p1, h1 := Normalize("SELECT * FROM users WHERE id = 1")
	p2, h2 := Normalize("SELECT * FROM users WHERE id = 999")

	assert.Equal(t, p1, p2)
	assert.Equal(t, h1, h2)

	// Same input again, same output: no randomized seed.
	p3, h3 := Normalize("SELECT * FROM users WHERE id = 1")
	assert.Equal(t, p1, p3)
	assert.Equal(t, h1, h3)
}

func TestNormalizeDistinguishesShapes(t *testing.T) {
	_, h1 := Normalize("SELECT * FROM users WHERE id = 1")
	_, h2 := Normalize("SELECT * FROM users WHERE name = 'x'")

	assert.NotEqual(t, h1, h2)
}

func TestNormalizeLiterals(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"numbers", "SELECT * FROM t WHERE a = 42 AND b = 3.14", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"strings", "SELECT * FROM t WHERE name = 'alice'", "SELECT * FROM t WHERE name = ?"},
		{"escaped quote", `SELECT * FROM t WHERE name = 'it\'s'`, "SELECT * FROM t WHERE name = ?"},
		{"hex", "SELECT * FROM t WHERE token = 0xDEADBEEF", "SELECT * FROM t WHERE token = ?"},
		{"bind params", "SELECT * FROM t WHERE id = $1 AND x = $2", "SELECT * FROM t WHERE id = ? AND x = ?"},
		{"whitespace", "SELECT  *\n FROM\tt", "SELECT * FROM t"},
		{"in list collapse", "SELECT * FROM t WHERE id IN (1, 2, 3)", "SELECT * FROM t WHERE id IN (?)"},
		{"keyword case preserved", "select * from t where id = 7", "select * from t where id = ?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hash := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Len(t, hash, 32)
		})
	}
}

func TestNormalizeINListLengthInsensitive(t *testing.T) {
	_, h1 := Normalize("SELECT * FROM t WHERE id IN (1, 2)")
	_, h2 := Normalize("SELECT * FROM t WHERE id IN (1, 2, 3, 4, 5)")
	assert.Equal(t, h1, h2)
}

func TestExtractTables(t *testing.T) {
	tables := ExtractTables("SELECT u.name FROM users u JOIN orders o ON o.user_id = u.id JOIN users u2 ON u2.id = o.ref")
	assert.Equal(t, []string{"users", "orders"}, tables)

	tables = ExtractTables("UPDATE accounts SET balance = 0")
	assert.Equal(t, []string{"accounts"}, tables)

	tables = ExtractTables("INSERT INTO audit_log (a) VALUES (1)")
	assert.Equal(t, []string{"audit_log"}, tables)

	// Subquery after FROM yields no phantom table.
	tables = ExtractTables("SELECT * FROM (SELECT id FROM inner_t) x")
	assert.Equal(t, []string{"inner_t"}, tables)
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"SELECT 1", KindSelect},
		{"  with cte AS (SELECT 1) SELECT * FROM cte", KindSelect},
		{"INSERT INTO t VALUES (1)", KindInsert},
		{"UPDATE t SET a = 1", KindUpdate},
		{"DELETE FROM t", KindDelete},
		{"CREATE TABLE t (id int)", KindDDL},
		{"DROP TABLE t", KindDDL},
		{"SHOW PROCESSLIST", KindOther},
		{"", KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyType(tt.in), tt.in)
	}
}

func TestIsSafeToExplain(t *testing.T) {
	require.True(t, IsSafeToExplain("SELECT * FROM t WHERE id = 1"))
	// A trailing semicolon is harmless.
	assert.True(t, IsSafeToExplain("SELECT * FROM t WHERE id = 1;"))
	// Semicolons and verbs inside string literals are data, not statements.
	assert.True(t, IsSafeToExplain("SELECT * FROM logs WHERE msg = 'a;b'"))
	assert.True(t, IsSafeToExplain("SELECT * FROM logs WHERE msg = 'please DELETE me'"))

	assert.False(t, IsSafeToExplain("UPDATE t SET a = 1"))
	assert.False(t, IsSafeToExplain("DELETE FROM t"))
	assert.False(t, IsSafeToExplain("INSERT INTO t VALUES (1)"))
	assert.False(t, IsSafeToExplain("DROP TABLE t"))
	// Data-modifying CTE must never reach EXPLAIN either.
	assert.False(t, IsSafeToExplain("WITH x AS (DELETE FROM t RETURNING id) SELECT * FROM x"))
	// Compound statements hide side effects behind the leading SELECT.
	assert.False(t, IsSafeToExplain("SELECT 1; DROP TABLE t"))
	assert.False(t, IsSafeToExplain("SELECT 1; SELECT 2"))
}
