package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// scanRecords reads every row into a record keyed by cols. Text columns some
// drivers return as []byte are normalized to string.
func scanRecords(rows *sql.Rows, cols []string) ([]ports.Record, error) {
	var out []ports.Record

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rec := make(ports.Record, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}

			rec[col] = vals[i]
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return out, nil
}
