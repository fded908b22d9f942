package postgres

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

// query is a parameterized SQL statement.
type query struct {
	sql  string
	args []any
}

// searchQuery builds the SELECT for a filter on one resource. Filter keys
// carry the resource prefix, e.g. "product.code"; the id key compares the
// id column and every other key a value of the JSONB document. Keys of
// other resources or of sub-items never match, like in the memory store.
func searchQuery(table, resource string, f *domain.Filter) query {
	if f == nil {
		f = domain.NewFilter()
	}

	args := []any{resource}
	conds := []string{"resource = $1"}
	argIdx := 2
	prefix := domain.KeyPrefix(resource)

	for _, c := range f.Conditions {
		var cond string
		var condArgs []any
		cond, condArgs, argIdx = buildCondition(prefix, c, argIdx)
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, doc FROM %s WHERE %s ORDER BY id",
		quoteIdentifier(table), strings.Join(conds, " AND "))
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}
	return query{sql: b.String(), args: args}
}

// buildCondition generates SQL for one condition starting at placeholder
// argIdx. It returns the next free placeholder index.
func buildCondition(prefix string, c domain.Condition, argIdx int) (string, []any, int) {
	short, ok := strings.CutPrefix(c.Key, prefix)
	if !ok || short == "" || strings.Contains(short, ".") {
		return "FALSE", nil, argIdx
	}

	var op string
	var value any
	switch {
	case c.Op == domain.OpEquals && len(c.Values) == 1:
		op, value = "= $%d", c.Values[0]
	case c.Op == domain.OpIn && len(c.Values) > 0:
		op, value = "= ANY($%d)", c.Values
	default:
		return "FALSE", nil, argIdx
	}

	if short == "id" {
		return "id::text " + fmt.Sprintf(op, argIdx), []any{value}, argIdx + 1
	}
	return fmt.Sprintf("(doc->'values'->>$%d) ", argIdx) + fmt.Sprintf(op, argIdx+1),
		[]any{short, value}, argIdx + 2
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func schemaStatements(table string) []string {
	t := quoteIdentifier(table)
	idx := quoteIdentifier(table + "_resource_code")
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id       BIGSERIAL PRIMARY KEY,
	resource TEXT NOT NULL,
	code     TEXT NOT NULL DEFAULT '',
	doc      JSONB NOT NULL,
	mtime    TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (resource, code)`, idx, t),
	}
}
