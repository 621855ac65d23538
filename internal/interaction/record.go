package interaction

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Columns is the log header, in row order.
var Columns = []string{
	"timestamp",
	"user_id",
	"user_role",
	"event_type",
	"input_modalities",
	"input_summary",
	"recognized_intent",
	"action_taken",
	"action_result",
	"feedback_channels_triggered",
	"feedback_summary",
	"notes",
}

// TimeLayout is the timestamp column format.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrShortRow = errors.New("interaction row has fewer than 12 columns")

// Record is one interaction log line. Records are never mutated after Append.
type Record struct {
	Timestamp        string `json:"timestamp"`
	UserID           string `json:"user_id"`
	UserRole         string `json:"user_role"`
	EventType        string `json:"event_type"`
	InputModalities  string `json:"input_modalities"`
	InputSummary     string `json:"input_summary"`
	RecognizedIntent string `json:"recognized_intent"`
	ActionTaken      string `json:"action_taken"`
	ActionResult     string `json:"action_result"`
	FeedbackChannels string `json:"feedback_channels_triggered"`
	FeedbackSummary  string `json:"feedback_summary"`
	Notes            string `json:"notes"`
}

func (r Record) Row() []string {
	return []string{
		r.Timestamp, r.UserID, r.UserRole, r.EventType, r.InputModalities, r.InputSummary,
		r.RecognizedIntent, r.ActionTaken, r.ActionResult, r.FeedbackChannels, r.FeedbackSummary, r.Notes,
	}
}

// FromRow is the inverse of Row. Extra columns are ignored.
func FromRow(row []string) (Record, error) {
	if len(row) < len(Columns) {
		return Record{}, ErrShortRow
	}
	return Record{
		Timestamp: row[0], UserID: row[1], UserRole: row[2], EventType: row[3],
		InputModalities: row[4], InputSummary: row[5], RecognizedIntent: row[6], ActionTaken: row[7],
		ActionResult: row[8], FeedbackChannels: row[9], FeedbackSummary: row[10], Notes: row[11],
	}, nil
}

// Modalities splits the input_modalities column.
func (r Record) Modalities() []string {
	if r.InputModalities == "" {
		return nil
	}
	return strings.Split(r.InputModalities, ";")
}

// Time parses the timestamp column; zero on failure.
func (r Record) Time() time.Time {
	t, err := time.Parse(TimeLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Writer persists records. Calls come from a single goroutine.
type Writer interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Reader returns every persisted record, oldest first.
type Reader interface {
	Records(ctx context.Context) ([]Record, error)
}
