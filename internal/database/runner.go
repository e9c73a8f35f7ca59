package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// CommandRunner executes SQL against Postgres. Queries come back as CSV
// rows, commands as a Postgres command tag such as "INSERT 0 3".
type CommandRunner interface {
	Exec(ctx context.Context, dsn, password, sql string, args ...any) (string, error)
	Close() error
}

// SQLRunner is the database/sql implementation of CommandRunner. It keeps one
// pool per DSN.
type SQLRunner struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewSQLRunner() CommandRunner {
	return &SQLRunner{pools: make(map[string]*sql.DB)}
}

func (r *SQLRunner) Exec(ctx context.Context, dsn, _ string, statement string, args ...any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	query := strings.TrimSpace(statement)
	if query == "" {
		return "", nil
	}

	db, err := r.pool(ctx, dsn)
	if err != nil {
		return "", err
	}

	if returnsRows(query) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return "", err
		}
		defer rows.Close()
		return rowsToCSV(rows)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	return commandTag(query, result)
}

func (r *SQLRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for dsn, db := range r.pools {
		_ = db.Close()
		delete(r.pools, dsn)
	}
	return nil
}

func (r *SQLRunner) pool(ctx context.Context, dsn string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql runner: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql runner: ping: %w", err)
	}

	r.pools[dsn] = db
	return db, nil
}

func returnsRows(statement string) bool {
	s := strings.ToUpper(statement)
	return strings.HasPrefix(s, "SELECT") || strings.HasPrefix(s, "WITH")
}

func rowsToCSV(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	w := csv.NewWriter(&b)

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func commandTag(statement string, result sql.Result) (string, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}

	verb := strings.ToUpper(strings.Fields(statement)[0])
	if verb == "INSERT" {
		return fmt.Sprintf("INSERT 0 %d", affected), nil
	}
	return fmt.Sprintf("%s %d", verb, affected), nil
}

var _ CommandRunner = (*SQLRunner)(nil)
