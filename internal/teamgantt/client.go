// Package teamgantt talks to TeamGantt: the v1 REST API for group state and
// the web app's PDF export endpoint.
package teamgantt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL   = "https://api.teamgantt.com/v1"
	DefaultTokenURL = "https://auth.teamgantt.com/oauth2/token"
)

// Credentials for the OAuth2 password grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Group is a collapsible group of tasks in a project.
type Group struct {
	ID            int64  `json:"id"`
	ProjectID     int64  `json:"project_id,omitempty"`
	ParentGroupID *int64 `json:"parent_group_id"`
	Name          string `json:"name,omitempty"`
	IsCollapsed   bool   `json:"is_collapsed"`
}

// Client is a TeamGantt REST client. A token is requested on first use and
// requested again once it expires.
type Client struct {
	apiURL string
	http   *http.Client
}

func NewClient(apiURL, tokenURL string, creds Credentials) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	base := &http.Client{Timeout: 30 * time.Second}
	ts := oauth2.ReuseTokenSource(nil, &passwordTokenSource{conf: conf, creds: creds, base: base})

	hc := oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, base), ts)
	hc.Timeout = base.Timeout

	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   hc,
	}
}

// RootGroups returns the project's top-level groups.
func (c *Client) RootGroups(ctx context.Context, projectID string) ([]Group, error) {
	var groups []Group
	path := "groups?project_ids=" + url.QueryEscape(projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}

	roots := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.ParentGroupID == nil {
			roots = append(roots, g)
		}
	}
	return roots, nil
}

// CollapseGroups marks the given groups as collapsed.
func (c *Client) CollapseGroups(ctx context.Context, groups []Group) error {
	if len(groups) == 0 {
		return nil
	}

	type patch struct {
		ID          int64 `json:"id"`
		IsCollapsed bool  `json:"is_collapsed"`
	}
	data := make([]patch, 0, len(groups))
	for _, g := range groups {
		data = append(data, patch{ID: g.ID, IsCollapsed: true})
	}
	return c.do(ctx, http.MethodPatch, "groups", map[string]any{"data": data}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil && method != http.MethodGet {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("teamgantt: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+"/"+path, body)
	if err != nil {
		return fmt.Errorf("teamgantt: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("teamgantt: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teamgantt: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("teamgantt: decode %s %s: %w", method, path, err)
	}
	return nil
}

// passwordTokenSource runs the password grant again whenever the cached
// token expires instead of relying on a refresh token.
type passwordTokenSource struct {
	conf  *oauth2.Config
	creds Credentials
	base  *http.Client
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.base)
	tok, err := s.conf.PasswordCredentialsToken(ctx, s.creds.Username, s.creds.Password)
	if err != nil {
		return nil, fmt.Errorf("teamgantt: request token: %w", err)
	}
	return tok, nil
}
