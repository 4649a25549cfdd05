// Package pipeline runs one mailing pass: for each account it exports the
// TeamGantt PDF, emails it to the customer and records the delivery so a
// repeat run on the same date skips it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ganttmailer/internal/metrics"
	"github.com/ganttmailer/internal/model"
	"github.com/ganttmailer/internal/notify"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("pipeline: date must be YYYY-MM-DD")

type SessionProvider interface {
	Session(ctx context.Context) (string, error)
}

type Exporter interface {
	Export(ctx context.Context, session, projectID, date string) (string, error)
}

type SentLog interface {
	List(ctx context.Context) (model.SentRecords, error)
	Append(ctx context.Context, rec model.SentRecord) error
}

type Notifier interface {
	SendReport(ctx context.Context, path string, a model.Account) error
}

type Reporter interface {
	Report(ctx context.Context, msg string) error
}

// SendFailurePolicy decides what happens to the rest of the run after an
// email could not be delivered.
type SendFailurePolicy string

const (
	PolicyAbort    SendFailurePolicy = "abort"
	PolicyContinue SendFailurePolicy = "continue"
)

func ParsePolicy(s string) (SendFailurePolicy, error) {
	switch SendFailurePolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicyContinue:
		return PolicyContinue, nil
	}
	return "", fmt.Errorf("pipeline: unknown send failure policy %q", s)
}

// Outcome is the final state an account reached during a run.
type Outcome string

const (
	SkippedInvalid     Outcome = "skipped_invalid"
	SkippedAlreadySent Outcome = "skipped_already_sent"
	FailedDownload     Outcome = "failed_download"
	Simulated          Outcome = "simulated"
	FailedSend         Outcome = "failed_send"
	Logged             Outcome = "logged"
	FailedLog          Outcome = "failed_log"
)

type Result struct {
	Account model.Account
	Outcome Outcome
	Path    string
	Err     error
}

type Summary struct {
	RunID    string
	Date     string
	Simulate bool
	Results  []Result
}

func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

type Options struct {
	// Date is the run date. Empty means today in UTC.
	Date     string
	Simulate bool
}

type Deps struct {
	Session  SessionProvider
	Exporter Exporter
	SentLog  SentLog
	Notifier Notifier
	Reporter Reporter
}

type Pipeline struct {
	deps   Deps
	policy SendFailurePolicy
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, policy SendFailurePolicy, logger *slog.Logger) *Pipeline {
	if policy == "" {
		policy = PolicyAbort
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Reporter == nil {
		deps.Reporter = notify.Discard{Logger: logger}
	}
	return &Pipeline{deps: deps, policy: policy, logger: logger, now: time.Now}
}

// Run processes accounts in order. It returns an error only when the run
// could not start (session, sent log, bad date), when the context ends, or
// when a send fails under PolicyAbort. The summary is non-nil whenever the
// loop was entered.
func (p *Pipeline) Run(ctx context.Context, accounts []model.Account, opts Options) (*Summary, error) {
	started := p.now()
	date := opts.Date
	if date == "" {
		date = started.UTC().Format(DateLayout)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	sum := &Summary{RunID: uuid.NewString(), Date: date, Simulate: opts.Simulate}
	logger := p.logger.With("run_id", sum.RunID, "date", date)

	reporter := p.deps.Reporter
	mode := "live"
	if opts.Simulate {
		reporter = notify.Discard{Logger: logger}
		mode = "simulate"
	}
	logger.Info("pipeline: starting run", "mode", mode, "accounts", len(accounts))

	err := p.run(ctx, logger, reporter, accounts, sum)

	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.RecordRun(result, mode, p.now().Sub(started))
	logger.Info("pipeline: run finished",
		"result", result,
		"logged", sum.Count(Logged),
		"simulated", sum.Count(Simulated),
		"skipped", sum.Count(SkippedAlreadySent)+sum.Count(SkippedInvalid),
		"failed", sum.Count(FailedDownload)+sum.Count(FailedSend)+sum.Count(FailedLog),
	)
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, reporter Reporter, accounts []model.Account, sum *Summary) error {
	session, err := p.deps.Session.Session(ctx)
	if err != nil {
		p.report(ctx, logger, reporter, err.Error())
		return fmt.Errorf("pipeline: session: %w", err)
	}

	sent, err := p.deps.SentLog.List(ctx)
	if err != nil {
		p.report(ctx, logger, reporter, err.Error())
		return fmt.Errorf("pipeline: list sent log: %w", err)
	}

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := p.process(ctx, logger, reporter, session, sum.Date, sum.Simulate, a, &sent)
		sum.Results = append(sum.Results, res)
		metrics.IncrementAccountOutcome(string(res.Outcome))

		if res.Outcome == FailedSend && p.policy == PolicyAbort {
			return fmt.Errorf("pipeline: send project %s to %s: %w", a.ProjectID, a.Email, res.Err)
		}
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, reporter Reporter, session, date string, simulate bool, a model.Account, sent *model.SentRecords) Result {
	res := Result{Account: a}
	project := a.ProjectID.String()

	if !a.Deliverable() {
		raw, _ := json.Marshal(a)
		msg := fmt.Sprintf("Missing project or email for account: %s", raw)
		logger.Error("pipeline: skipping account", "reason", "missing project or email", "project_number", a.ProjectNumber)
		p.report(ctx, logger, reporter, msg)
		res.Outcome = SkippedInvalid
		return res
	}

	logger = logger.With("project", project, "email", a.Email)
	logger.Info("pipeline: processing account")

	if sent.Contains(project, a.Email, date) {
		logger.Info("pipeline: already sent, skipping")
		res.Outcome = SkippedAlreadySent
		return res
	}

	exportStart := p.now()
	path, err := p.deps.Exporter.Export(ctx, session, project, date)
	if err != nil {
		metrics.RecordExport("failed", p.now().Sub(exportStart))
		logger.Error("pipeline: export failed", "error", err)
		p.report(ctx, logger, reporter, err.Error())
		res.Outcome, res.Err = FailedDownload, err
		return res
	}
	metrics.RecordExport("ok", p.now().Sub(exportStart))
	res.Path = path

	if simulate {
		logger.Info("pipeline: simulation, not emailing", "path", path)
		res.Outcome = Simulated
		return res
	}

	if err := p.deps.Notifier.SendReport(ctx, path, a); err != nil {
		logger.Error("pipeline: email failed", "path", path, "error", err)
		p.report(ctx, logger, reporter, fmt.Sprintf("Error emailing PDF at location %s to %s: %v", path, a.Email, err))
		res.Outcome, res.Err = FailedSend, err
		return res
	}

	rec := model.SentRecord{Project: project, Email: a.Email, Date: date}
	*sent = append(*sent, rec)
	if err := p.deps.SentLog.Append(ctx, rec); err != nil {
		logger.Error("pipeline: email sent but not recorded", "error", err)
		p.report(ctx, logger, reporter, fmt.Sprintf("Email to %s for project %s was sent but could not be logged: %v", a.Email, project, err))
		res.Outcome, res.Err = FailedLog, err
		return res
	}

	logger.Info("pipeline: email sent")
	res.Outcome = Logged
	return res
}

func (p *Pipeline) report(ctx context.Context, logger *slog.Logger, reporter Reporter, msg string) {
	if err := reporter.Report(ctx, msg); err != nil {
		logger.Warn("pipeline: failure report not delivered", "error", err)
	}
}
