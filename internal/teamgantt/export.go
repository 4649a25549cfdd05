package teamgantt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrKind classifies export failures.
type ErrKind string

const (
	KindTransport     ErrKind = "transport"
	KindEmpty         ErrKind = "empty"
	KindPostcondition ErrKind = "postcondition"
	KindInvalid       ErrKind = "invalid"
)

var (
	// ErrEmptyExport means TeamGantt answered with no content, which is what
	// happens when the project does not exist or the export failed silently.
	ErrEmptyExport = errors.New("downloaded file is empty")
	// ErrGroupsExpanded means a root group was expanded again after the
	// export was requested.
	ErrGroupsExpanded = errors.New("project has expanded groups")
	// ErrInvalidProjectID means the project id or date cannot name a file
	// inside ReportsDir.
	ErrInvalidProjectID = errors.New("invalid project id")
)

// ExportError is returned by Export for every failure.
type ExportError struct {
	Project string
	Kind    ErrKind
	Err     error
}

func (e *ExportError) Error() string {
	switch e.Kind {
	case KindEmpty:
		return fmt.Sprintf("Downloaded file is empty. project %s may not exist", e.Project)
	case KindPostcondition:
		return fmt.Sprintf("Project %s has expanded groups", e.Project)
	}
	return fmt.Sprintf("export project %s: %v", e.Project, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

type groupAPI interface {
	RootGroups(ctx context.Context, projectID string) ([]Group, error)
	CollapseGroups(ctx context.Context, groups []Group) error
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	ExportURL      string
	ReportsDir     string
	Options        ExportOptions
	CollapseGroups bool
}

// Exporter downloads Gantt chart PDFs using a browser session cookie.
type Exporter struct {
	groups groupAPI
	cfg    ExporterConfig
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter returns an Exporter. groups may be nil when CollapseGroups is
// disabled.
func NewExporter(groups groupAPI, cfg ExporterConfig, logger *slog.Logger) *Exporter {
	if cfg.ExportURL == "" {
		cfg.ExportURL = DefaultExportURL
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		groups: groups,
		cfg:    cfg,
		http: &http.Client{
			Timeout: 2 * time.Minute,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Export writes the project's PDF to <ReportsDir>/<projectID>_<date>.pdf and
// returns the path.
func (e *Exporter) Export(ctx context.Context, session, projectID, date string) (string, error) {
	if err := checkFileComponent(projectID, date); err != nil {
		return "", &ExportError{Project: projectID, Kind: KindInvalid, Err: err}
	}

	collapse := e.cfg.CollapseGroups && e.groups != nil

	if collapse {
		if err := e.collapseRootGroups(ctx, projectID); err != nil {
			return "", &ExportError{Project: projectID, Kind: KindTransport, Err: err}
		}
	}

	path, err := e.download(ctx, session, projectID, date)
	if err != nil {
		return "", err
	}

	if collapse {
		roots, err := e.groups.RootGroups(ctx, projectID)
		if err != nil {
			return "", &ExportError{Project: projectID, Kind: KindTransport, Err: err}
		}
		for _, g := range roots {
			if !g.IsCollapsed {
				return "", &ExportError{Project: projectID, Kind: KindPostcondition, Err: ErrGroupsExpanded}
			}
		}
	}

	return path, nil
}

func (e *Exporter) collapseRootGroups(ctx context.Context, projectID string) error {
	roots, err := e.groups.RootGroups(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list root groups: %w", err)
	}
	if err := e.groups.CollapseGroups(ctx, roots); err != nil {
		return fmt.Errorf("collapse root groups: %w", err)
	}
	e.logger.Debug("teamgantt: collapsed root groups", "project", projectID, "groups", len(roots))
	return nil
}

// URL builds the export URL. user_date is always today because it only
// positions the "today" marker line in the chart.
func (e *Exporter) URL(projectID string) string {
	v := e.cfg.Options.Values()
	v.Set("projects", projectID)
	v.Set("user_date", e.now().UTC().Format(time.DateOnly))
	return e.cfg.ExportURL + "?" + v.Encode()
}

func (e *Exporter) download(ctx context.Context, session, projectID, date string) (string, error) {
	if err := checkFileComponent(projectID, date); err != nil {
		return "", &ExportError{Project: projectID, Kind: KindInvalid, Err: err}
	}

	fail := func(err error) (string, error) {
		return "", &ExportError{Project: projectID, Kind: KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL(projectID), nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Cookie", session)
	req.Header.Set("Accept", "application/pdf")

	resp, err := e.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Errorf("export returned status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(e.cfg.ReportsDir, 0o755); err != nil {
		return fail(fmt.Errorf("create reports dir: %w", err))
	}

	path := filepath.Join(e.cfg.ReportsDir, fmt.Sprintf("%s_%s.pdf", projectID, date))
	f, err := os.Create(path)
	if err != nil {
		return fail(fmt.Errorf("create %s: %w", path, err))
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return fail(fmt.Errorf("write %s: %w", path, err))
	}

	if n == 0 {
		_ = os.Remove(path)
		return "", &ExportError{Project: projectID, Kind: KindEmpty, Err: ErrEmptyExport}
	}

	e.logger.Debug("teamgantt: export written", "project", projectID, "path", path, "bytes", n)
	return path, nil
}

// checkFileComponent rejects values that would let the report file name
// leave ReportsDir.
func checkFileComponent(values ...string) error {
	for _, v := range values {
		if v == "" || v == "." || v == ".." || filepath.Base(v) != v || strings.ContainsAny(v, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidProjectID, v)
		}
	}
	return nil
}
