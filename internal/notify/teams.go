// Package notify posts one-line failure summaries to a Microsoft Teams
// incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const summary = "Issue encountered when executing ganttmailer"

type messageCard struct {
	Type       string    `json:"@type"`
	Context    string    `json:"@context"`
	ThemeColor string    `json:"themeColor"`
	Summary    string    `json:"summary"`
	Sections   []section `json:"sections"`
}

type section struct {
	ActivityTitle string `json:"activityTitle"`
	Markdown      bool   `json:"markdown"`
	Facts         []fact `json:"facts"`
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Teams reports failures as Office 365 connector message cards.
type Teams struct {
	url    string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewTeams returns a reporter for webhookURL. An empty URL yields a reporter
// that only logs.
func NewTeams(webhookURL string, logger *slog.Logger) *Teams {
	if logger == nil {
		logger = slog.Default()
	}
	return &Teams{
		url:    webhookURL,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		now:    time.Now,
	}
}

// Report posts msg to the webhook.
func (t *Teams) Report(ctx context.Context, msg string) error {
	if t.url == "" {
		t.logger.Warn("notify: no webhook URL configured, skipping", "message", msg)
		return nil
	}

	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "0076D7",
		Summary:    summary,
		Sections: []section{{
			ActivityTitle: msg,
			Markdown:      true,
			Facts:         []fact{{Name: "Triggered at", Value: t.now().Format("2006-01-02 15:04:05 MST")}},
		}},
	}
	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("notify: marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Discard is a reporter that only logs. Used in test and simulation contexts.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) Report(_ context.Context, msg string) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify: suppressed", "message", msg)
	return nil
}
