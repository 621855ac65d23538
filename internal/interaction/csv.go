package interaction

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVWriter appends rows to a CSV file, writing the header when the file is
// new or empty. Each row is flushed before Write returns.
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

func OpenCSV(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv log: %w", err)
	}
	cw := &CSVWriter{f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := cw.writeRow(Columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return cw, nil
}

func (c *CSVWriter) Write(_ context.Context, rec Record) error {
	return c.writeRow(rec.Row())
}

func (c *CSVWriter) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

// ReadCSV parses a log written by CSVWriter. The header row is skipped.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []Record
	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv log: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == Columns[0] {
				continue
			}
		}
		rec, err := FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("read csv log line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// CSVFile reads a CSV log by path.
type CSVFile string

func (p CSVFile) Records(context.Context) ([]Record, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}
