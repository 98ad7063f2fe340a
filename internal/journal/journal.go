// Package journal keeps a local history of synchronization outcomes in
// sqlite. The journal is write-only from the sync path and read only by the
// /history endpoint; nothing in the relay ever consults it when deciding
// what to do with an event, so the remote services stay the single source
// of truth.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	operation TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	channel_number INTEGER NOT NULL,
	programs INTEGER NOT NULL,
	minutes INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_history_recorded_at ON sync_history(recorded_at);
`

// Entry is one recorded outcome.
type Entry struct {
	ID            int64     `json:"id"`
	EventID       string    `json:"event_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Operation     string    `json:"operation"`
	ChannelName   string    `json:"channel_name"`
	ChannelNumber int       `json:"channel_number"`
	Programs      int       `json:"programs"`
	Minutes       int       `json:"minutes"`
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one outcome row.
func (j *Journal) Record(ctx context.Context, outcome channelsync.Outcome) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sync_history (event_id, recorded_at, operation, channel_name, channel_number, programs, minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		outcome.EventID,
		time.Now().UTC().Format(time.RFC3339),
		string(outcome.Operation),
		outcome.ChannelName,
		outcome.ChannelNumber,
		outcome.ProgramCount,
		outcome.TotalMinutes,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event_id, recorded_at, operation, channel_name, channel_number, programs, minutes
		 FROM sync_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.EventID, &ts, &e.Operation, &e.ChannelName, &e.ChannelNumber, &e.Programs, &e.Minutes); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.RecordedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
