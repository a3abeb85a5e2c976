package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed record store.
type SQLiteStore struct {
	db *sql.DB
}

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"synchronous(NORMAL)",
}

// NewSQLiteStore opens (or creates) the database at dbPath, applies pragmas
// and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")

	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", pragmaDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// pragmaDSN appends _pragma query parameters so that every connection the
// pool opens is configured, not just the first one.
func pragmaDSN(dbPath string) string {
	params := url.Values{}
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}
	// Transactions take the write lock up front so that a read followed by a
	// write inside one transaction waits on busy_timeout instead of failing.
	params.Set("_txlock", "immediate")
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + params.Encode()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_metadata").Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	version, err := SchemaVersion(s.db)
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	return &Stats{UserCount: count, SchemaVersion: version}, nil
}

// ListRows returns every non-deleted row of a collection for the user,
// ordered by insertion.
func (s *SQLiteStore) ListRows(ctx context.Context, userID, collection string) ([]Row, error) {
	t, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, data, extra_data, updated_at
		FROM %s
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY rowid ASC
	`, t.KeyColumn, t.Name), userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	result := make([]Row, 0)
	for rows.Next() {
		var r Row
		var data string
		var extra sql.NullString
		var updatedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &data, &extra, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", t.Name, err)
		}
		r.Data = json.RawMessage(data)
		if extra.Valid && extra.String != "" {
			r.Extra = json.RawMessage(extra.String)
		}
		r.UpdatedAt = updatedAt.Int64
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", t.Name, err)
	}
	return result, nil
}

// CountRows returns the number of non-deleted rows of a collection for the user.
func (s *SQLiteStore) CountRows(ctx context.Context, userID, collection string) (int64, error) {
	t, err := tableFor(collection)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ? AND deleted_at IS NULL", t.Name),
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return count, nil
}

// nullableJSON converts raw JSON to a sql-friendly value.
// Returns nil for empty payloads, string otherwise.
func nullableJSON(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
