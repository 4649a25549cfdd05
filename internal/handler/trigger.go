package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ganttmailer/internal/accounts"
	"github.com/ganttmailer/internal/model"
	"github.com/ganttmailer/internal/pipeline"
)

// Runner starts a run in the background and returns once it is queued.
type Runner interface {
	Start(accounts []model.Account, opts pipeline.Options) error
}

type TriggerHandler struct {
	BaseHandler
	runner Runner
}

func NewTriggerHandler(logger *slog.Logger, runner Runner) *TriggerHandler {
	return &TriggerHandler{BaseHandler: BaseHandler{Logger: logger}, runner: runner}
}

type triggerRequest struct {
	Accounts []model.Account `json:"accounts"`
}

// Trigger handles POST /main. The run continues after the response is sent.
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if len(req.Accounts) == 0 {
		h.badRequestResponse(w, r, errors.New("accounts must not be empty"))
		return
	}

	if err := accounts.ValidateAccounts(req.Accounts); err != nil {
		h.validationErrorResponse(w, r, err)
		return
	}

	opts, err := runOptions(r)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.runner.Start(req.Accounts, opts); err != nil {
		h.serviceUnavailableResponse(w, r, err)
		return
	}

	h.Logger.Info("trigger: run accepted", "accounts", len(req.Accounts), "simulate", opts.Simulate, "date", opts.Date)
	if err := h.writeJSON(w, http.StatusAccepted, envelope{"message": "Emails will send shortly!"}, nil); err != nil {
		h.logError(r, err)
	}
}

func runOptions(r *http.Request) (pipeline.Options, error) {
	var opts pipeline.Options
	q := r.URL.Query()

	if v := q.Get("simulate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("simulate must be a boolean")
		}
		opts.Simulate = b
	}
	if v := q.Get("date"); v != "" {
		if _, err := time.Parse(pipeline.DateLayout, v); err != nil {
			return opts, errors.New("date must be YYYY-MM-DD")
		}
		opts.Date = v
	}
	return opts, nil
}
