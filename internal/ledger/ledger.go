// Package ledger keeps a sqlite history of generation runs so a batch can
// report which characters rendered differently from their previous run.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/XuF163/metaGenerator-sub000/internal/logging"
)

// ErrNotFound is returned by Last when a character has no successful entry.
var ErrNotFound = errors.New("no ledger entry")

// Entry is one character's outcome in one run.
type Entry struct {
	RunID     string
	Character string
	Game      string
	// Digest is empty for failed runs.
	Digest    string
	OK        bool
	Error     string
	Details   int
	Buffs     int
	Repairs   int
	CreatedAt time.Time
}

// Change is a character whose digest moved between successful runs.
// Previous is empty the first time a character succeeds.
type Change struct {
	Character string
	Previous  string
	Current   string
}

// Ledger is a sqlite-backed entry log. It is safe for concurrent use.
type Ledger struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens or creates the ledger at path. ":memory:" keeps it in memory.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, path: path}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.LedgerDebug("ledger ready at %s", path)
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		character TEXT NOT NULL,
		game TEXT NOT NULL,
		digest TEXT NOT NULL DEFAULT '',
		ok INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		details INTEGER NOT NULL DEFAULT 0,
		buffs INTEGER NOT NULL DEFAULT 0,
		repairs INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_character ON entries(character, id);
	CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends e. A zero CreatedAt is set to now.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	timer := logging.StartTimer(logging.CategoryLedger, "Record")
	defer timer.Stop()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO entries (run_id, character, game, digest, ok, error, details, buffs, repairs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Character, e.Game, e.Digest, boolToInt(e.OK), e.Error,
		e.Details, e.Buffs, e.Repairs, e.CreatedAt.UnixNano())
	if err != nil {
		logging.LedgerError("failed to record %s/%s: %v", e.RunID, e.Character, err)
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	logging.LedgerDebug("recorded %s/%s ok=%v", e.RunID, e.Character, e.OK)
	return nil
}

const entryColumns = `run_id, character, game, digest, ok, error, details, buffs, repairs, created_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var (
		e  Entry
		ok int
		ts int64
	)
	if err := row.Scan(&e.RunID, &e.Character, &e.Game, &e.Digest, &ok, &e.Error,
		&e.Details, &e.Buffs, &e.Repairs, &ts); err != nil {
		return Entry{}, err
	}
	e.OK = ok != 0
	e.CreatedAt = time.Unix(0, ts)
	return e, nil
}

// Last returns the most recent successful entry for character.
func (l *Ledger) Last(ctx context.Context, character string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries
		WHERE character = ? AND ok = 1 ORDER BY id DESC LIMIT 1`, character)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w for %s", ErrNotFound, character)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	return e, nil
}

// Run returns every entry recorded under runID in insertion order.
func (l *Ledger) Run(ctx context.Context, runID string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries
		WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Changed lists the characters that succeeded in runID with a digest that
// differs from their previous successful entry, in insertion order.
func (l *Ledger) Changed(ctx context.Context, runID string) ([]Change, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx, `
		SELECT cur.character, cur.digest, COALESCE((
			SELECT prev.digest FROM entries prev
			WHERE prev.character = cur.character AND prev.ok = 1 AND prev.id < cur.id
			ORDER BY prev.id DESC LIMIT 1
		), '')
		FROM entries cur
		WHERE cur.run_id = ? AND cur.ok = 1
		ORDER BY cur.id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to diff ledger run: %w", err)
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Character, &c.Current, &c.Previous); err != nil {
			return nil, fmt.Errorf("failed to scan ledger diff: %w", err)
		}
		if c.Previous != c.Current {
			out = append(out, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logging.Ledger("run %s: %d changed character(s)", runID, len(out))
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
