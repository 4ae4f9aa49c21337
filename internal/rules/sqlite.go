package rules

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists rules in a single local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary initializes) the rule database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open rule db %s: %w", path, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		expression TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'all',
		options TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init rule schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// FetchRules returns the rules whose kind starts with kindPrefix and whose
// scope covers the account, ordered by ord then id.
func (s *SQLiteStore) FetchRules(ctx context.Context, kindPrefix, account string) ([]Rule, error) {
	const q = `
	SELECT id, kind, expression, scope, options, ord FROM rules
	WHERE kind LIKE ? || '%' AND (scope = 'all' OR scope LIKE '%+(' || ? || ')%')
	ORDER BY ord, id`
	rows, err := s.db.QueryContext(ctx, q, kindPrefix, account)
	if err != nil {
		return nil, fmt.Errorf("fetch %s rules: %w", kindPrefix, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Kind, &r.Expression, &r.Scope, &r.Options, &r.Order); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}
	return out, nil
}

// AddRule inserts a rule row and returns it with the assigned id.
func (s *SQLiteStore) AddRule(ctx context.Context, r Rule) (Rule, error) {
	const q = `INSERT INTO rules (kind, expression, scope, options, ord) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, r.Kind, r.Expression, r.Scope, r.Options, r.Order)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Rule{}, fmt.Errorf("rule insert id: %w", err)
	}
	r.ID = id
	return r, nil
}

// ListRules returns every stored rule regardless of scope, for management
// and lint tooling.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]Rule, error) {
	const q = `SELECT id, kind, expression, scope, options, ord FROM rules ORDER BY kind, ord, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Kind, &r.Expression, &r.Scope, &r.Options, &r.Order); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
