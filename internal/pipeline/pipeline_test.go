package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ganttmailer/internal/model"
	"github.com/ganttmailer/internal/sentlog"
)

const testDate = "2024-11-04"

type fakeSession struct {
	cookie string
	err    error
	calls  int
}

func (f *fakeSession) Session(context.Context) (string, error) {
	f.calls++
	return f.cookie, f.err
}

type fakeExporter struct {
	fail  map[string]error
	calls []string
}

func (f *fakeExporter) Export(_ context.Context, session, projectID, date string) (string, error) {
	f.calls = append(f.calls, projectID)
	if err := f.fail[projectID]; err != nil {
		return "", err
	}
	return filepath.Join("reports", projectID+"_"+date+".pdf"), nil
}

type fakeNotifier struct {
	fail map[string]error
	sent []string
}

func (f *fakeNotifier) SendReport(_ context.Context, path string, a model.Account) error {
	if err := f.fail[a.Email]; err != nil {
		return err
	}
	f.sent = append(f.sent, a.Email)
	return nil
}

type memLog struct {
	records   model.SentRecords
	appendErr error
}

func (m *memLog) List(context.Context) (model.SentRecords, error) {
	return append(model.SentRecords(nil), m.records...), nil
}

func (m *memLog) Append(_ context.Context, rec model.SentRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

type fakeReporter struct {
	msgs []string
}

func (f *fakeReporter) Report(_ context.Context, msg string) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type harness struct {
	session  *fakeSession
	exporter *fakeExporter
	notifier *fakeNotifier
	log      SentLog
	reporter *fakeReporter
}

func newHarness(log SentLog) *harness {
	if log == nil {
		log = &memLog{}
	}
	return &harness{
		session:  &fakeSession{cookie: "sid=abc"},
		exporter: &fakeExporter{fail: map[string]error{}},
		notifier: &fakeNotifier{fail: map[string]error{}},
		log:      log,
		reporter: &fakeReporter{},
	}
}

func (h *harness) pipeline(policy SendFailurePolicy) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Deps{
		Session:  h.session,
		Exporter: h.exporter,
		SentLog:  h.log,
		Notifier: h.notifier,
		Reporter: h.reporter,
	}, policy, logger)
}

func account(project, email string) model.Account {
	return model.Account{
		ProjectID:     model.ProjectID(project),
		ProjectName:   "Neubau " + project,
		ProjectNumber: "P-" + project,
		Email:         email,
		CC:            []string{},
		FirstName:     "Erika",
		LastName:      "Muster",
	}
}

func TestRunSendsAndLogs(t *testing.T) {
	log := &memLog{}
	h := newHarness(log)

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
		account("2", "b@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Count(Logged) != 2 {
		t.Errorf("expected 2 logged accounts, got %+v", sum.Results)
	}
	if len(log.records) != 2 || log.records[0] != (model.SentRecord{Project: "1", Email: "a@x.com", Date: testDate}) {
		t.Errorf("unexpected sent log: %+v", log.records)
	}
	if sum.Results[0].Path != filepath.Join("reports", "1_"+testDate+".pdf") {
		t.Errorf("unexpected path %q", sum.Results[0].Path)
	}
	if h.session.calls != 1 {
		t.Errorf("expected one login per run, got %d", h.session.calls)
	}
	if sum.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestSimulateNeverSends(t *testing.T) {
	log := &memLog{}
	h := newHarness(log)
	h.exporter.fail["2"] = errors.New("Downloaded file is empty. project 2 may not exist")

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
		account("2", "b@x.com"),
		account("", "c@x.com"),
	}, Options{Date: testDate, Simulate: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.notifier.sent) != 0 {
		t.Errorf("expected no emails in simulate mode, got %v", h.notifier.sent)
	}
	if len(log.records) != 0 {
		t.Errorf("expected no sent log writes in simulate mode, got %+v", log.records)
	}
	if len(h.exporter.calls) != 2 {
		t.Errorf("expected exports to still run, got %v", h.exporter.calls)
	}
	if len(h.reporter.msgs) != 0 {
		t.Errorf("expected failure reports to be suppressed, got %v", h.reporter.msgs)
	}
	if sum.Count(Simulated) != 1 || sum.Count(FailedDownload) != 1 || sum.Count(SkippedInvalid) != 1 {
		t.Errorf("unexpected outcomes: %+v", sum.Results)
	}
}

func TestAlreadySentSkipsExportAndSend(t *testing.T) {
	log := &memLog{records: model.SentRecords{{Project: "1", Email: "a@x.com", Date: testDate}}}
	h := newHarness(log)

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.exporter.calls) != 0 || len(h.notifier.sent) != 0 {
		t.Errorf("expected no export or send, got exports=%v sent=%v", h.exporter.calls, h.notifier.sent)
	}
	if sum.Results[0].Outcome != SkippedAlreadySent {
		t.Errorf("expected SkippedAlreadySent, got %s", sum.Results[0].Outcome)
	}
}

func TestSameTripleOnOtherDateIsSent(t *testing.T) {
	log := &memLog{records: model.SentRecords{{Project: "1", Email: "a@x.com", Date: "2024-10-28"}}}
	h := newHarness(log)

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Results[0].Outcome != Logged {
		t.Errorf("expected Logged, got %s", sum.Results[0].Outcome)
	}
}

func TestExportFailureContinues(t *testing.T) {
	h := newHarness(nil)
	h.exporter.fail["1"] = errors.New("Downloaded file is empty. project 1 may not exist")

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
		account("2", "b@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("export failure must not fail the run: %v", err)
	}

	if len(h.notifier.sent) != 1 || h.notifier.sent[0] != "b@x.com" {
		t.Errorf("expected only b@x.com to be emailed, got %v", h.notifier.sent)
	}
	if len(h.reporter.msgs) != 1 || !strings.Contains(h.reporter.msgs[0], "project 1 may not exist") {
		t.Errorf("expected the export failure to be reported, got %v", h.reporter.msgs)
	}
	if sum.Results[0].Outcome != FailedDownload {
		t.Errorf("expected FailedDownload, got %s", sum.Results[0].Outcome)
	}
}

func TestInvalidAccountIsReportedAndSkipped(t *testing.T) {
	h := newHarness(nil)

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", ""),
		account("2", "b@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Results[0].Outcome != SkippedInvalid {
		t.Errorf("expected SkippedInvalid, got %s", sum.Results[0].Outcome)
	}
	if len(h.reporter.msgs) != 1 || !strings.HasPrefix(h.reporter.msgs[0], "Missing project or email for account:") {
		t.Errorf("unexpected reports: %v", h.reporter.msgs)
	}
	if len(h.exporter.calls) != 1 || h.exporter.calls[0] != "2" {
		t.Errorf("expected only project 2 exported, got %v", h.exporter.calls)
	}
}

func TestSendFailurePolicy(t *testing.T) {
	sendErr := errors.New("535 authentication failed")

	tests := []struct {
		name       string
		policy     SendFailurePolicy
		wantErr    bool
		wantSent   []string
		wantResult int
	}{
		{"abort stops the run", PolicyAbort, true, nil, 1},
		{"continue moves on", PolicyContinue, false, []string{"b@x.com"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &memLog{}
			h := newHarness(log)
			h.notifier.fail["a@x.com"] = sendErr

			sum, err := h.pipeline(tt.policy).Run(context.Background(), []model.Account{
				account("1", "a@x.com"),
				account("2", "b@x.com"),
			}, Options{Date: testDate})

			if tt.wantErr {
				if !errors.Is(err, sendErr) {
					t.Fatalf("expected send error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(sum.Results) != tt.wantResult {
				t.Errorf("expected %d results, got %d", tt.wantResult, len(sum.Results))
			}
			if sum.Results[0].Outcome != FailedSend {
				t.Errorf("expected FailedSend, got %s", sum.Results[0].Outcome)
			}
			if strings.Join(h.notifier.sent, ",") != strings.Join(tt.wantSent, ",") {
				t.Errorf("expected sent %v, got %v", tt.wantSent, h.notifier.sent)
			}
			for _, r := range log.records {
				if r.Email == "a@x.com" {
					t.Error("a failed send must not be logged")
				}
			}
			if len(h.reporter.msgs) != 1 {
				t.Errorf("expected the send failure to be reported, got %v", h.reporter.msgs)
			}
		})
	}
}

func TestRunIsIdempotentWithCSVLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailLog.csv")
	accounts := []model.Account{account("1", "a@x.com"), account("2", "b@x.com")}

	first := newHarness(sentlog.NewCSVLog(path))
	if _, err := first.pipeline(PolicyAbort).Run(context.Background(), accounts, Options{Date: testDate}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := newHarness(sentlog.NewCSVLog(path))
	sum, err := second.pipeline(PolicyAbort).Run(context.Background(), accounts, Options{Date: testDate})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.notifier.sent) != 2 {
		t.Errorf("expected first run to send 2 emails, got %v", first.notifier.sent)
	}
	if len(second.notifier.sent) != 0 || len(second.exporter.calls) != 0 {
		t.Errorf("expected second run to do nothing, got sent=%v exports=%v", second.notifier.sent, second.exporter.calls)
	}
	if sum.Count(SkippedAlreadySent) != 2 {
		t.Errorf("expected 2 skipped accounts, got %+v", sum.Results)
	}

	records, err := sentlog.NewCSVLog(path).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected exactly one record per triple, got %+v", records)
	}
}

func TestDuplicateRowInSameRunIsSentOnce(t *testing.T) {
	h := newHarness(nil)

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
		account("1", "a@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.notifier.sent) != 1 || sum.Results[1].Outcome != SkippedAlreadySent {
		t.Errorf("expected the duplicate row to be skipped, got %+v", sum.Results)
	}
}

func TestLogFailureIsReportedAndRunContinues(t *testing.T) {
	h := newHarness(&memLog{appendErr: errors.New("disk full")})

	sum, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{
		account("1", "a@x.com"),
		account("2", "b@x.com"),
	}, Options{Date: testDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Count(FailedLog) != 2 || len(h.notifier.sent) != 2 {
		t.Errorf("unexpected outcomes: %+v", sum.Results)
	}
	if len(h.reporter.msgs) != 2 {
		t.Errorf("expected both log failures reported, got %v", h.reporter.msgs)
	}
}

func TestSessionFailureAbortsBeforeAnyAccount(t *testing.T) {
	authErr := errors.New("session: authentication failed")
	h := newHarness(nil)
	h.session.err = authErr

	_, err := h.pipeline(PolicyAbort).Run(context.Background(), []model.Account{account("1", "a@x.com")}, Options{Date: testDate})
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if len(h.exporter.calls) != 0 {
		t.Errorf("expected no exports, got %v", h.exporter.calls)
	}
	if len(h.reporter.msgs) != 1 {
		t.Errorf("expected the auth failure to be reported, got %v", h.reporter.msgs)
	}
}

func TestDateDefaultsToTodayUTC(t *testing.T) {
	h := newHarness(nil)
	p := h.pipeline(PolicyAbort)
	p.now = func() time.Time { return time.Date(2024, 11, 4, 23, 30, 0, 0, time.FixedZone("CET", 3600)) }

	sum, err := p.Run(context.Background(), nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Date != testDate {
		t.Errorf("expected %s, got %s", testDate, sum.Date)
	}
}

func TestInvalidDateIsRejected(t *testing.T) {
	h := newHarness(nil)

	_, err := h.pipeline(PolicyAbort).Run(context.Background(), nil, Options{Date: "04.11.2024"})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if h.session.calls != 0 {
		t.Error("expected no login for an invalid date")
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]SendFailurePolicy{"": PolicyAbort, "abort": PolicyAbort, "continue": PolicyContinue} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}
