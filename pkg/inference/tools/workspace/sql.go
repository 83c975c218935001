package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-go-golems/codesmith/pkg/inference/tools"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const maxSQLRows = 200

type SQLQueryInput struct {
	Query string `json:"query" jsonschema:"description=A single read-only SQL statement (SELECT / WITH / PRAGMA / EXPLAIN)"`
}

var readOnlyPrefixes = []string{"select", "with", "pragma", "explain"}

func sqlQuery(ctx context.Context, in SQLQueryInput, execCtx *tools.ExecutionContext) (tools.Output, error) {
	if execCtx.DB == nil {
		return tools.Output{Content: "No database is configured for this session.", IsError: true}, nil
	}
	q := strings.TrimSpace(in.Query)
	q = strings.TrimSuffix(q, ";")
	if strings.Contains(q, ";") {
		return tools.Output{Content: "Only a single statement is allowed.", IsError: true}, nil
	}
	lower := strings.ToLower(q)
	allowed := false
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(lower, p) {
			allowed = true
			break
		}
	}
	if !allowed {
		return tools.Output{Content: "Only read-only queries are allowed.", IsError: true}, nil
	}

	rows, err := execCtx.DB.QueryContext(ctx, q)
	if err != nil {
		return tools.Output{}, errors.Wrap(err, "query failed")
	}
	defer rows.Close()

	result, truncated, err := scanRows(rows)
	if err != nil {
		return tools.Output{}, err
	}
	b, err := yaml.Marshal(result)
	if err != nil {
		return tools.Output{}, errors.Wrap(err, "encode rows")
	}
	out := string(b)
	if len(result) == 0 {
		out = "(no rows)"
	}
	if truncated {
		out += fmt.Sprintf("... (truncated at %d rows)\n", maxSQLRows)
	}
	return tools.Output{Content: out, Metadata: map[string]any{"rows": len(result)}}, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}
	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxSQLRows {
			return out, true, nil
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, errors.Wrap(err, "scan row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, false, rows.Err()
}
