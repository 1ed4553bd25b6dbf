package db

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// MergeMode selects the statement shape produced by MergeSpec.
type MergeMode int

const (
	// MergeUpsert inserts new keys and overwrites existing ones.
	MergeUpsert MergeMode = iota
	// MergeUpdate only touches rows that already exist in the target.
	MergeUpdate
)

// DefaultOrder is the staging column that orders rows by arrival.
const DefaultOrder = "stage_id"

// MergeSpec describes a keyed merge from a staging table into a target table.
// Only the newest staged row per key (highest Order value) takes part, so
// duplicate staging rows never produce duplicate or conflicting writes.
type MergeSpec struct {
	Target  string    // target table (e.g., "jc_hc_curent")
	Source  string    // staging table (e.g., "hc_curent_temp")
	Keys    []string  // natural key; ON CONFLICT target for upserts
	Match   []string  // extra columns that must also match in MergeUpdate mode
	Columns []string  // payload columns copied from the staging row
	Order   string    // arrival column; "" = DefaultOrder
	Mode    MergeMode // upsert or update-only
}

// SQL renders the merge statement. The output uses only syntax shared by
// PostgreSQL and SQLite (window functions, ON CONFLICT, UPDATE ... FROM).
func (m MergeSpec) SQL() (string, error) {
	if m.Target == "" || m.Source == "" {
		return "", eris.New("db: merge: target and source are required")
	}
	if len(m.Keys) == 0 {
		return "", eris.Errorf("db: merge %s: no keys specified", m.Target)
	}
	if len(m.Columns) == 0 {
		return "", eris.Errorf("db: merge %s: no columns specified", m.Target)
	}

	switch m.Mode {
	case MergeUpsert:
		return m.upsertSQL(), nil
	case MergeUpdate:
		return m.updateSQL(), nil
	default:
		return "", eris.Errorf("db: merge %s: unknown mode %d", m.Target, m.Mode)
	}
}

// latest renders the subquery selecting the newest staged row per key.
func (m MergeSpec) latest(cols []string) string {
	order := m.Order
	if order == "" {
		order = DefaultOrder
	}
	return fmt.Sprintf(
		"SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC) AS rn FROM %s",
		quoteAndJoin(cols),
		quoteAndJoin(union(m.Keys, m.Match)),
		quote(order),
		sanitizeTable(m.Source),
	)
}

func (m MergeSpec) upsertSQL() string {
	cols := union(m.Keys, m.Columns)

	keySet := make(map[string]bool, len(m.Keys))
	for _, k := range m.Keys {
		keySet[k] = true
	}
	var setClauses []string
	for _, col := range cols {
		if keySet[col] {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quote(col), quote(col)))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM (%s) AS latest WHERE latest.rn = 1 ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(m.Target),
		quoteAndJoin(cols),
		qualifyAndJoin("latest", cols),
		m.latest(cols),
		quoteAndJoin(m.Keys),
		strings.Join(setClauses, ", "),
	)
}

func (m MergeSpec) updateSQL() string {
	match := union(m.Keys, m.Match)
	cols := union(match, m.Columns)

	setClauses := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		setClauses[i] = fmt.Sprintf("%s = latest.%s", quote(col), quote(col))
	}
	conds := []string{"latest.rn = 1"}
	for _, k := range match {
		conds = append(conds, fmt.Sprintf("cur.%s = latest.%s", quote(k), quote(k)))
	}

	return fmt.Sprintf(
		"UPDATE %s AS cur SET %s FROM (%s) AS latest WHERE %s",
		sanitizeTable(m.Target),
		strings.Join(setClauses, ", "),
		m.latest(cols),
		strings.Join(conds, " AND "),
	)
}
