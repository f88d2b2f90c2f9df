package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/seanankenbruck/samarth-qa/internal/store"
)

// ColumnSet resolves column names of the dataset relation. Lookup returns the
// canonical spelling of a known column.
type ColumnSet interface {
	Lookup(name string) (string, bool)
	Names() []string
}

// Fallback rule names, used in logs and as the "reason" metric label
const (
	RuleCountByYear = "count_by_year"
	RuleTopYearRank = "top_year_rank"
	RuleListAll     = "list_all"
	RuleGroupBy     = "group_by"
)

var groupByPattern = regexp.MustCompile(`\bby\s+(\w+)`)

// FallbackMatcher maps a few recognized question shapes to canned SQL.
// It never calls the generation backend.
type FallbackMatcher struct {
	relation string
	columns  ColumnSet
}

// NewFallbackMatcher creates a matcher for relation. A nil column set falls
// back to the statically known columns.
func NewFallbackMatcher(relation string, columns ColumnSet) *FallbackMatcher {
	if relation == "" {
		relation = store.DefaultRelation
	}
	if columns == nil {
		columns = store.StaticColumns(store.KnownColumns)
	}
	return &FallbackMatcher{relation: relation, columns: columns}
}

// Match returns the SQL for the first rule the question satisfies.
func (m *FallbackMatcher) Match(question string) (string, bool) {
	sql, _, ok := m.MatchRule(question)
	return sql, ok
}

// MatchRule is Match that also names the rule that fired.
func (m *FallbackMatcher) MatchRule(question string) (sql string, rule string, ok bool) {
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "count") && strings.Contains(q, "year"):
		return fmt.Sprintf("SELECT year, COUNT(*) AS year_rank FROM %s GROUP BY year ORDER BY year", m.relation), RuleCountByYear, true

	case containsAny(q, "top", "highest", "max") && strings.Contains(q, "year_rank"):
		return fmt.Sprintf("SELECT * FROM %s ORDER BY year_rank DESC LIMIT 10", m.relation), RuleTopYearRank, true

	case containsAny(q, "list", "show all", "select *"):
		return fmt.Sprintf("SELECT * FROM %s LIMIT 200", m.relation), RuleListAll, true
	}

	if match := groupByPattern.FindStringSubmatch(q); len(match) > 1 {
		// the captured word is untrusted; only known columns are interpolated
		col, known := m.columns.Lookup(match[1])
		if !known {
			return "", "", false
		}
		ident := quoteIdentifier(col)
		return fmt.Sprintf("SELECT %s, COUNT(*) AS cnt FROM %s GROUP BY %s ORDER BY cnt DESC LIMIT 200",
			ident, m.relation, ident), RuleGroupBy, true
	}

	return "", "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
