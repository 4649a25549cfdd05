// Package sentlog records which project PDFs were already delivered to which
// address on which day. Every backend is append-only.
package sentlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ganttmailer/internal/model"
)

var header = []string{"project", "email", "date"}

// CSVLog keeps the sent log in a local CSV file with a "project,email,date"
// header row.
type CSVLog struct {
	path string
}

func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

// List returns every record in the file, or an empty list if the file does
// not exist yet.
func (l *CSVLog) List(ctx context.Context) (model.SentRecords, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.SentRecords{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("sentlog: open %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records := model.SentRecords{}
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sentlog: read %s: %w", l.path, err)
		}
		if first {
			first = false
			if len(row) > 0 && strings.EqualFold(row[0], header[0]) {
				continue
			}
		}
		if len(row) < 3 {
			continue
		}
		records = append(records, model.SentRecord{
			Project: strings.TrimSpace(row[0]),
			Email:   strings.TrimSpace(row[1]),
			Date:    strings.TrimSpace(row[2]),
		})
	}
	return records, nil
}

// Append adds one record, creating the file with its header on first use.
func (l *CSVLog) Append(ctx context.Context, rec model.SentRecord) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sentlog: create dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sentlog: open %s: %w", l.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("sentlog: stat %s: %w", l.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("sentlog: write header %s: %w", l.path, err)
		}
	}
	if err := w.Write([]string{rec.Project, rec.Email, rec.Date}); err != nil {
		f.Close()
		return fmt.Errorf("sentlog: write %s: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("sentlog: flush %s: %w", l.path, err)
	}
	return f.Close()
}
