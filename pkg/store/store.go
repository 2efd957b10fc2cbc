// Package store keeps the history of entered programs and tool calls in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
)

// ErrNotFound is returned when a record id is unknown
var ErrNotFound = errors.New("record not found")

// Store wraps the SQLite connection
type Store struct {
	conn         *sql.DB
	maxToolCalls int
}

// ProgramRecord is one program written to the machine
type ProgramRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Lines     int       `json:"lines"`
	Size      int       `json:"size"`
	Base      uint16    `json:"base"`
	End       uint16    `json:"end"`
	AutoRun   bool      `json:"auto_run"`
}

// ToolCall is one audited tool invocation
type ToolCall struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Tool      string        `json:"tool"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Open opens (and if needed creates) the database at path
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{conn: conn, maxToolCalls: 1000}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info(logger.AreaDatabase, "History database ready at %s", path)
	return s, nil
}

// OpenFromConfig opens the database named in the [Database] section
func OpenFromConfig() (*Store, error) {
	s, err := Open(configuration.GetString("Database", "path", "c64mcp.db"))
	if err != nil {
		return nil, err
	}
	s.maxToolCalls = configuration.GetInt("Database", "max_tool_calls", 1000)
	return s, nil
}

// Close closes the connection
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			source TEXT NOT NULL,
			lines INTEGER NOT NULL,
			size INTEGER NOT NULL,
			base INTEGER NOT NULL,
			end_address INTEGER NOT NULL,
			auto_run INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			tool TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programs_created ON programs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SaveProgram stores a program; ID and CreatedAt are filled in when empty
func (s *Store) SaveProgram(ctx context.Context, rec *ProgramRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO programs (id, created_at, source, lines, size, base, end_address, auto_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UnixNano(), rec.Source, rec.Lines, rec.Size, int(rec.Base), int(rec.End), boolToInt(rec.AutoRun))
	if err != nil {
		return fmt.Errorf("error saving program: %w", err)
	}
	logger.Debug(logger.AreaDatabase, "Saved program %s (%d bytes)", rec.ID, rec.Size)
	return nil
}

// RecentPrograms returns up to limit programs, newest first
func (s *Store) RecentPrograms(ctx context.Context, limit int) ([]ProgramRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, created_at, source, lines, size, base, end_address, auto_run
		FROM programs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing programs: %w", err)
	}
	defer rows.Close()

	var result []ProgramRecord
	for rows.Next() {
		rec, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// Program returns one program by id
func (s *Store) Program(ctx context.Context, id string) (*ProgramRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, created_at, source, lines, size, base, end_address, auto_run
		FROM programs WHERE id = ?
	`, id)
	rec, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: program %s", ErrNotFound, id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(row scanner) (*ProgramRecord, error) {
	var (
		rec       ProgramRecord
		created   int64
		base, end int
		autoRun   int
	)
	if err := row.Scan(&rec.ID, &created, &rec.Source, &rec.Lines, &rec.Size, &base, &end, &autoRun); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.Base = uint16(base)
	rec.End = uint16(end)
	rec.AutoRun = autoRun != 0
	return &rec, nil
}

// RecordToolCall stores an audit entry and prunes the oldest ones
func (s *Store) RecordToolCall(ctx context.Context, call *ToolCall) error {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tool_calls (id, created_at, tool, ok, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, call.ID, call.CreatedAt.UnixNano(), call.Tool, boolToInt(call.OK), call.Error, call.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("error saving tool call: %w", err)
	}

	if s.maxToolCalls > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM tool_calls WHERE rowid NOT IN (
				SELECT rowid FROM tool_calls ORDER BY created_at DESC, rowid DESC LIMIT ?
			)
		`, s.maxToolCalls)
		if err != nil {
			return fmt.Errorf("error pruning tool calls: %w", err)
		}
	}
	return tx.Commit()
}

// RecentToolCalls returns up to limit audit entries, newest first
func (s *Store) RecentToolCalls(ctx context.Context, limit int) ([]ToolCall, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, created_at, tool, ok, error, duration_ms
		FROM tool_calls ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing tool calls: %w", err)
	}
	defer rows.Close()

	var result []ToolCall
	for rows.Next() {
		var (
			call     ToolCall
			created  int64
			ok       int
			errText  sql.NullString
			duration int64
		)
		if err := rows.Scan(&call.ID, &created, &call.Tool, &ok, &errText, &duration); err != nil {
			return nil, err
		}
		call.CreatedAt = time.Unix(0, created)
		call.OK = ok != 0
		call.Error = errText.String
		call.Duration = time.Duration(duration) * time.Millisecond
		result = append(result, call)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
