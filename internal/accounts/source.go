// Package accounts loads the customer accounts the mailer works through and
// validates them against the fixed spreadsheet schema.
package accounts

import (
	"context"
	"errors"

	"github.com/ganttmailer/internal/model"
)

// ErrSourceUnavailable is returned when the backing file or spreadsheet
// cannot be read.
var ErrSourceUnavailable = errors.New("accounts: source unavailable")

// Row is one spreadsheet row keyed by lower-cased column name.
type Row map[string]any

// Source supplies validated accounts for a run.
type Source interface {
	List(ctx context.Context) ([]model.Account, error)
}
