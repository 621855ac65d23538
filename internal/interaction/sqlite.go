package interaction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interaction_log (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	user_id TEXT NOT NULL,
	user_role TEXT,
	event_type TEXT NOT NULL,
	input_modalities TEXT,
	input_summary TEXT,
	recognized_intent TEXT,
	action_taken TEXT,
	action_result TEXT,
	feedback_channels_triggered TEXT,
	feedback_summary TEXT,
	notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_interaction_log_user ON interaction_log(user_id);
CREATE INDEX IF NOT EXISTS idx_interaction_log_seq ON interaction_log(seq);
`

// SQLiteWriter appends records to an interaction_log table.
type SQLiteWriter struct {
	db  *sql.DB
	seq int64
}

func OpenSQLite(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	w := &SQLiteWriter{db: db}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM interaction_log").Scan(&w.seq); err != nil {
		db.Close()
		return nil, fmt.Errorf("read seq: %w", err)
	}
	return w, nil
}

func (s *SQLiteWriter) Write(ctx context.Context, rec Record) error {
	s.seq++
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interaction_log (id, seq, timestamp, user_id, user_role, event_type,
			input_modalities, input_summary, recognized_intent, action_taken, action_result,
			feedback_channels_triggered, feedback_summary, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.seq, rec.Timestamp, rec.UserID,
		nullIfEmpty(rec.UserRole), rec.EventType,
		nullIfEmpty(rec.InputModalities), nullIfEmpty(rec.InputSummary),
		nullIfEmpty(rec.RecognizedIntent), nullIfEmpty(rec.ActionTaken),
		nullIfEmpty(rec.ActionResult), nullIfEmpty(rec.FeedbackChannels),
		nullIfEmpty(rec.FeedbackSummary), nullIfEmpty(rec.Notes),
	)
	if err != nil {
		s.seq--
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, user_id, user_role, event_type, input_modalities, input_summary,
			recognized_intent, action_taken, action_result, feedback_channels_triggered,
			feedback_summary, notes
		 FROM interaction_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                                   Record
			role, mods, summary, intent, action sql.NullString
			result, channels, fbSummary, notes  sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &r.UserID, &role, &r.EventType, &mods, &summary,
			&intent, &action, &result, &channels, &fbSummary, &notes); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		r.UserRole, r.InputModalities, r.InputSummary = role.String, mods.String, summary.String
		r.RecognizedIntent, r.ActionTaken, r.ActionResult = intent.String, action.String, result.String
		r.FeedbackChannels, r.FeedbackSummary, r.Notes = channels.String, fbSummary.String, notes.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteWriter) Close() error { return s.db.Close() }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
