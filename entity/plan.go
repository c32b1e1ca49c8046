package entity

import "strings"

// MySQLPlanRow is one row of tabular EXPLAIN output.
type MySQLPlanRow struct {
	SelectType   string  `json:"select_type"`
	Table        string  `json:"table"`
	AccessType   string  `json:"access_type"`
	PossibleKeys string  `json:"possible_keys"`
	Key          string  `json:"key"`
	Ref          string  `json:"ref"`
	Rows         int64   `json:"rows"`
	Filtered     float64 `json:"filtered"`
	Extra        string  `json:"extra"`
}

type MySQLPlan struct {
	Rows []MySQLPlanRow `json:"rows"`
}

// PostgresPlanNode mirrors one node of EXPLAIN (FORMAT JSON) output.
// Field tags match the names PostgreSQL emits.
type PostgresPlanNode struct {
	NodeType     string             `json:"Node Type"`
	RelationName string             `json:"Relation Name"`
	IndexName    string             `json:"Index Name"`
	StartupCost  float64            `json:"Startup Cost"`
	TotalCost    float64            `json:"Total Cost"`
	PlanRows     int64              `json:"Plan Rows"`
	PlanWidth    int                `json:"Plan Width"`
	SortKey      []string           `json:"Sort Key"`
	Plans        []PostgresPlanNode `json:"Plans"`
}

type PostgresPlan struct {
	Root PostgresPlanNode `json:"Plan"`
}

// ExplainPlan is a tagged union over the dialect-specific plan shapes,
// keyed by SourceDBType. Exactly one of MySQL/Postgres is set.
type ExplainPlan struct {
	SourceDBType string        `json:"source_db_type"`
	MySQL        *MySQLPlan    `json:"mysql,omitempty"`
	Postgres     *PostgresPlan `json:"postgres,omitempty"`
}

// TableScan is a full/sequential scan surfaced by a plan accessor.
type TableScan struct {
	Table string
	Rows  int64
}

// FullScans returns every full or sequential table scan in the plan.
func (p *ExplainPlan) FullScans() []TableScan {
	if p == nil {
		return nil
	}
	var scans []TableScan
	switch p.SourceDBType {
	case DBTypeMySQL:
		if p.MySQL == nil {
			return nil
		}
		for _, row := range p.MySQL.Rows {
			if strings.EqualFold(row.AccessType, "ALL") {
				scans = append(scans, TableScan{Table: row.Table, Rows: row.Rows})
			}
		}
	case DBTypePostgres:
		if p.Postgres == nil {
			return nil
		}
		walkPostgresNodes(&p.Postgres.Root, func(n *PostgresPlanNode) {
			if n.NodeType == "Seq Scan" {
				scans = append(scans, TableScan{Table: n.RelationName, Rows: n.PlanRows})
			}
		})
	}
	return scans
}

// HasUnindexedSort reports whether the plan sorts without index support:
// a filesort in MySQL, or a Sort node not fed by an index scan in Postgres.
func (p *ExplainPlan) HasUnindexedSort() bool {
	if p == nil {
		return false
	}
	switch p.SourceDBType {
	case DBTypeMySQL:
		if p.MySQL == nil {
			return false
		}
		for _, row := range p.MySQL.Rows {
			if strings.Contains(row.Extra, "Using filesort") {
				return true
			}
		}
	case DBTypePostgres:
		if p.Postgres == nil {
			return false
		}
		found := false
		walkPostgresNodes(&p.Postgres.Root, func(n *PostgresPlanNode) {
			if n.NodeType != "Sort" {
				return
			}
			for i := range n.Plans {
				if strings.Contains(n.Plans[i].NodeType, "Index") {
					return
				}
			}
			found = true
		})
		return found
	}
	return false
}

// EstimatedRows is the largest per-node row estimate in the plan.
func (p *ExplainPlan) EstimatedRows() int64 {
	if p == nil {
		return 0
	}
	var max int64
	switch p.SourceDBType {
	case DBTypeMySQL:
		if p.MySQL == nil {
			return 0
		}
		for _, row := range p.MySQL.Rows {
			if row.Rows > max {
				max = row.Rows
			}
		}
	case DBTypePostgres:
		if p.Postgres == nil {
			return 0
		}
		walkPostgresNodes(&p.Postgres.Root, func(n *PostgresPlanNode) {
			if n.PlanRows > max {
				max = n.PlanRows
			}
		})
	}
	return max
}

// EstimatedCost is the planner's total cost estimate. MySQL tabular
// EXPLAIN carries no cost, so it reports zero there.
func (p *ExplainPlan) EstimatedCost() float64 {
	if p == nil || p.SourceDBType != DBTypePostgres || p.Postgres == nil {
		return 0
	}
	return p.Postgres.Root.TotalCost
}

func walkPostgresNodes(n *PostgresPlanNode, fn func(*PostgresPlanNode)) {
	fn(n)
	for i := range n.Plans {
		walkPostgresNodes(&n.Plans[i], fn)
	}
}
