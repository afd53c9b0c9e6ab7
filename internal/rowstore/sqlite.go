package rowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the same row-per-sheet model in a local SQLite database.
// It exists so the rest of the system can run against a transactional store
// (and so tests don't need a deployed Apps Script): rows keep their 1-based
// sheet indices, header row included, making the two backends interchangeable.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database in dataDir and ensures the
// schema. Pass ":memory:" as dataDir for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "mugenbot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sheet_rows (
		sheet TEXT NOT NULL,
		idx INTEGER NOT NULL,
		cells TEXT NOT NULL,
		PRIMARY KEY (sheet, idx)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sheet_rows table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListRows(ctx context.Context, table string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY idx ASC", table)
	if err != nil {
		return nil, &TransportError{Op: "list", Table: table, Err: err}
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, &TransportError{Op: "list", Table: table, Err: err}
		}
		var r Row
		if err := json.Unmarshal([]byte(cells), &r); err != nil {
			return nil, &TransportError{Op: "list", Table: table, Err: fmt.Errorf("decoding row: %w", err)}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransportError{Op: "list", Table: table, Err: err}
	}
	return result, nil
}

func (s *SQLiteStore) AppendRow(ctx context.Context, table string, row Row) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx), 0) + 1 FROM sheet_rows WHERE sheet = ?", table).Scan(&next); err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sheet_rows (sheet, idx, cells) VALUES (?, ?, ?)", table, next, string(cells)); err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}
	return nil
}

func (s *SQLiteStore) UpdateRow(ctx context.Context, table string, rowIndex int, row Row) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return &TransportError{Op: "update", Table: table, Err: err}
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE sheet_rows SET cells = ? WHERE sheet = ? AND idx = ?", string(cells), table, rowIndex)
	if err != nil {
		return &TransportError{Op: "update", Table: table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &TransportError{Op: "update", Table: table, Err: err}
	}
	if n == 0 {
		return &TransportError{Op: "update", Table: table, Err: fmt.Errorf("row %d does not exist", rowIndex)}
	}
	return nil
}

// InitializeSchema writes header rows for tables that are still empty.
func (s *SQLiteStore) InitializeSchema(ctx context.Context) error {
	headers := map[string]Row{
		TableContacts:  ContactsHeaders,
		TableKnowledge: KnowledgeHeaders,
		TableTraining:  {"DateTime", "Sender", "Message"},
	}
	for table, header := range headers {
		rows, err := s.ListRows(ctx, table)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			continue
		}
		if err := s.AppendRow(ctx, table, header); err != nil {
			return err
		}
	}
	return nil
}
