package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ganttmailer/internal/accounts"
	"github.com/ganttmailer/internal/config"
	"github.com/ganttmailer/internal/model"
	"github.com/ganttmailer/internal/pipeline"
	"github.com/ganttmailer/internal/sentlog"
)

type stubSession struct{}

func (stubSession) Session(context.Context) (string, error) { return "sid=abc", nil }

type stubExporter struct{}

func (stubExporter) Export(_ context.Context, _, projectID, date string) (string, error) {
	return filepath.Join("reports", projectID+"_"+date+".pdf"), nil
}

// recordingNotifier fails the test if two sends ever overlap.
type recordingNotifier struct {
	mu     sync.Mutex
	active bool
	sent   []string
	t      *testing.T
}

func (n *recordingNotifier) SendReport(_ context.Context, _ string, a model.Account) error {
	n.mu.Lock()
	if n.active {
		n.t.Error("two runs sent at the same time")
	}
	n.active = true
	n.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	n.mu.Lock()
	n.active = false
	n.sent = append(n.sent, a.Email)
	n.mu.Unlock()
	return nil
}

type stubSource struct {
	list []model.Account
	err  error
}

func (s stubSource) List(context.Context) ([]model.Account, error) { return s.list, s.err }

type recordingReporter struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingReporter) Report(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func newTestApp(t *testing.T, tokenHash string, source accounts.Source) (*App, *recordingNotifier, *recordingReporter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &recordingNotifier{t: t}
	reporter := &recordingReporter{}

	app := &App{
		config:   &config.Config{TriggerTokenHash: tokenHash, Env: "development"},
		logger:   logger,
		source:   source,
		reporter: reporter,
		pipeline: pipeline.New(pipeline.Deps{
			Session:  stubSession{},
			Exporter: stubExporter{},
			SentLog:  sentlog.NewCSVLog(filepath.Join(t.TempDir(), "mailLog.csv")),
			Notifier: notifier,
			Reporter: reporter,
		}, pipeline.PolicyAbort, logger),
	}
	app.runCtx, app.stopRuns = context.WithCancel(context.Background())
	t.Cleanup(app.Close)
	return app, notifier, reporter
}

func TestPostMainStartsBackgroundRun(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("trigger-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	app, notifier, _ := newTestApp(t, string(hash), stubSource{})

	body := `{"accounts":[{"teamgantt_project_id":4251746,"email":"a@x.com","cc":[]}]}`
	req := httptest.NewRequest(http.MethodPost, "/main?date=2024-11-04", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer trigger-token")
	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Emails will send shortly!") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}

	app.drainRuns(5 * time.Second)
	if len(notifier.sent) != 1 || notifier.sent[0] != "a@x.com" {
		t.Errorf("expected one email to a@x.com, got %v", notifier.sent)
	}
}

func TestPostMainRequiresToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("trigger-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	app, notifier, _ := newTestApp(t, string(hash), stubSource{})

	req := httptest.NewRequest(http.MethodPost, "/main", strings.NewReader(`{"accounts":[{"teamgantt_project_id":"1","email":"a@x.com"}]}`))
	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	app.drainRuns(time.Second)
	if len(notifier.sent) != 0 {
		t.Errorf("expected no run, got %v", notifier.sent)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	app, _, _ := newTestApp(t, "", stubSource{})
	h := app.routes()

	for _, path := range []string{"/api/health", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestConcurrentRunsAreSerialized(t *testing.T) {
	app, notifier, _ := newTestApp(t, "", stubSource{})

	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		accounts := []model.Account{{ProjectID: model.ProjectID(string(rune('1' + i))), Email: email}}
		if err := app.Start(accounts, pipeline.Options{Date: "2024-11-04"}); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	app.drainRuns(5 * time.Second)

	if len(notifier.sent) != 3 {
		t.Errorf("expected 3 emails, got %v", notifier.sent)
	}
}

func TestStartRefusedWhileShuttingDown(t *testing.T) {
	app, _, _ := newTestApp(t, "", stubSource{})
	app.drainRuns(time.Second)

	err := app.Start([]model.Account{{ProjectID: "1", Email: "a@x.com"}}, pipeline.Options{})
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestRunFromSourceReportsSourceFailure(t *testing.T) {
	srcErr := errors.New("accounts: source unavailable: sheet not shared")
	app, _, reporter := newTestApp(t, "", stubSource{err: srcErr})

	_, err := app.RunFromSource(context.Background(), pipeline.Options{Date: "2024-11-04"})
	if !errors.Is(err, srcErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(reporter.msgs) != 1 || reporter.msgs[0] != srcErr.Error() {
		t.Errorf("expected the failure to be reported, got %v", reporter.msgs)
	}

	if _, err := app.RunFromSource(context.Background(), pipeline.Options{Date: "2024-11-04", Simulate: true}); err == nil {
		t.Fatal("expected an error in simulate mode too")
	}
	if len(reporter.msgs) != 1 {
		t.Errorf("expected simulate mode not to post reports, got %v", reporter.msgs)
	}
}

func TestRunFromSourceSendsListedAccounts(t *testing.T) {
	app, notifier, _ := newTestApp(t, "", stubSource{list: []model.Account{
		{ProjectID: "1", Email: "a@x.com"},
		{ProjectID: "2", Email: "b@x.com"},
	}})

	sum, err := app.RunFromSource(context.Background(), pipeline.Options{Date: "2024-11-04"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Count(pipeline.Logged) != 2 || len(notifier.sent) != 2 {
		t.Errorf("unexpected summary %+v", sum.Results)
	}
}

func TestRunFromSourceReportsUnreadableSheetsKey(t *testing.T) {
	src := accounts.NewSheetsSource(filepath.Join(t.TempDir(), "missing-key.json"), "sheet-id", "Sheet1")
	app, notifier, reporter := newTestApp(t, "", src)

	_, err := app.RunFromSource(context.Background(), pipeline.Options{Date: "2024-11-04"})
	if !errors.Is(err, accounts.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if len(reporter.msgs) != 1 || !strings.Contains(reporter.msgs[0], "service account key") {
		t.Errorf("expected the key failure to be reported, got %v", reporter.msgs)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("expected no emails, got %v", notifier.sent)
	}
}

func TestNewReportsSentLogStartupFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		cards []string
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var card struct {
			Sections []struct {
				ActivityTitle string `json:"activityTitle"`
			} `json:"sections"`
		}
		if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
			t.Errorf("decode card: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		for _, s := range card.Sections {
			cards = append(cards, s.ActivityTitle)
		}
	}))
	t.Cleanup(webhook.Close)

	cfg := &config.Config{
		Env:             "test",
		AccountsSource:  config.SourceFile,
		AccountsFile:    filepath.Join(t.TempDir(), "accounts.json"),
		SentLogBackend:  config.BackendPostgres,
		DatabaseURL:     "postgres://%zz",
		TeamsWebhookURL: webhook.URL,
	}

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected New to fail for an unparsable database url")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cards) != 1 || !strings.Contains(cards[0], "open database") {
		t.Errorf("expected the startup failure to be posted, got %v", cards)
	}
}
