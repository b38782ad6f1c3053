package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect isolates the SQL that differs between SQLite and Postgres.
type dialect struct {
	name     string
	driver   string
	idColumn string
	// placeholder returns the n-th (1-based) bind marker.
	placeholder func(n int) string
	columns     func(ctx context.Context, db *sql.DB) (map[string]bool, error)
}

var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	idColumn:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
	placeholder: func(int) string { return "?" },
	columns: func(ctx context.Context, db *sql.DB) (map[string]bool, error) {
		rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('trades')`)
		if err != nil {
			return nil, err
		}
		return scanNames(rows)
	},
}

var postgresDialect = dialect{
	name:        "postgres",
	driver:      "pgx",
	idColumn:    "id BIGSERIAL PRIMARY KEY",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	columns: func(ctx context.Context, db *sql.DB) (map[string]bool, error) {
		rows, err := db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns WHERE table_name = 'trades' AND table_schema = current_schema()`)
		if err != nil {
			return nil, err
		}
		return scanNames(rows)
	},
}

func scanNames(rows *sql.Rows) (map[string]bool, error) {
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// dialectFor picks the backend from the DSN: postgres:// and postgresql://
// URLs go to pgx, anything else is a SQLite file path.
func dialectFor(dsn string) dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgresDialect
	}
	return sqliteDialect
}

func (d dialect) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = d.placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}
