package accounts

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ganttmailer/internal/model"
)

// SheetsSource reads account rows from a Google Sheets range whose first row
// holds the column names. The Sheets client is built on the first List so a
// bad key file fails that run, not process startup.
type SheetsSource struct {
	keyFile       string
	spreadsheetID string
	readRange     string

	mu  sync.Mutex
	svc *sheets.Service
}

// NewSheetsSource returns a source that authenticates with a service-account
// key file.
func NewSheetsSource(keyFile, spreadsheetID, readRange string) *SheetsSource {
	return &SheetsSource{keyFile: keyFile, spreadsheetID: spreadsheetID, readRange: readRange}
}

func NewSheetsSourceWithService(svc *sheets.Service, spreadsheetID, readRange string) *SheetsSource {
	return &SheetsSource{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}
}

func (s *SheetsSource) service(ctx context.Context) (*sheets.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.svc != nil {
		return s.svc, nil
	}

	key, err := os.ReadFile(s.keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read service account key: %w", ErrSourceUnavailable, err)
	}
	conf, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse service account key: %w", ErrSourceUnavailable, err)
	}
	// Token refreshes outlive ctx.
	base := context.WithoutCancel(ctx)
	svc, err := sheets.NewService(base, option.WithHTTPClient(conf.Client(base)))
	if err != nil {
		return nil, fmt.Errorf("%w: sheets client: %w", ErrSourceUnavailable, err)
	}
	s.svc = svc
	return svc, nil
}

func (s *SheetsSource) List(ctx context.Context) ([]model.Account, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read spreadsheet %s: %w", ErrSourceUnavailable, s.spreadsheetID, err)
	}
	return Validate(rowsFromValues(resp.Values))
}

// rowsFromValues turns a header row plus data rows into keyed rows. Short
// rows leave trailing columns unset.
func rowsFromValues(values [][]any) []Row {
	if len(values) == 0 {
		return nil
	}

	header := make([]string, len(values[0]))
	for i, h := range values[0] {
		name, _ := h.(string)
		header[i] = normalizeKey(name)
	}

	rows := make([]Row, 0, len(values)-1)
	for _, vals := range values[1:] {
		row := make(Row, len(header))
		for i, v := range vals {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row[header[i]] = v
		}
		rows = append(rows, row)
	}
	return rows
}
