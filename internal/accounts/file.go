package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ganttmailer/internal/model"
)

// FileSource reads account rows from a local JSON or YAML file. Each entry is
// an object keyed by the spreadsheet column names.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) List(ctx context.Context) ([]model.Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, s.path, err)
	}

	var raw []map[string]any
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrSourceUnavailable, s.path, err)
	}

	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, normalizeRow(r))
	}
	return Validate(rows)
}

func normalizeRow(r map[string]any) Row {
	row := make(Row, len(r))
	for k, v := range r {
		row[normalizeKey(k)] = v
	}
	return row
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
