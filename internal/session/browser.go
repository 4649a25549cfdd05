// Package session obtains an authenticated TeamGantt web session by driving
// a headless browser through the login form.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrAuthentication is returned when the login does not complete.
var ErrAuthentication = errors.New("session: authentication failed")

const (
	DefaultLoginURL     = "https://app.teamgantt.com"
	DefaultLoginTimeout = 30 * time.Second

	emailSelector    = `input[name="email"]`
	passwordSelector = `input[name="password"]`
	submitSelector   = `input[type="submit"]`
)

// Config configures a BrowserProvider.
type Config struct {
	LoginURL string
	// LandingURL is the URL the app navigates to after a successful login.
	// Defaults to LoginURL.
	LandingURL   string
	Username     string
	Password     string
	LoginTimeout time.Duration
	// ExecPath overrides the Chrome binary chromedp looks up.
	ExecPath string
}

// BrowserProvider logs in with headless Chrome. Each call starts and tears
// down its own browser process.
type BrowserProvider struct {
	cfg    Config
	logger *slog.Logger
}

func NewBrowserProvider(cfg Config, logger *slog.Logger) *BrowserProvider {
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.LandingURL == "" {
		cfg.LandingURL = cfg.LoginURL
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserProvider{cfg: cfg, logger: logger}
}

// Session returns every session cookie joined into a Cookie header value.
func (p *BrowserProvider) Session(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	loginCtx, cancelLogin := p.loginContext(browserCtx)
	defer cancelLogin()

	var cookies []*network.Cookie
	err := chromedp.Run(loginCtx,
		chromedp.Navigate(p.cfg.LoginURL),
		chromedp.WaitVisible(emailSelector, chromedp.ByQuery),
		chromedp.SendKeys(emailSelector, p.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, p.cfg.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		waitForURL(p.cfg.LandingURL, p.cfg.LoginTimeout),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if len(cookies) == 0 {
		return "", fmt.Errorf("%w: no cookies after login", ErrAuthentication)
	}

	p.logger.Info("session: logged in", "cookies", len(cookies))
	return JoinCookies(cookies), nil
}

// loginContext bounds the whole login, page load included, to twice the
// landing wait.
func (p *BrowserProvider) loginContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*p.cfg.LoginTimeout)
}

// waitForURL polls the page location until it equals want or timeout passes.
func waitForURL(want string, timeout time.Duration) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			var loc string
			if err := chromedp.Location(&loc).Do(ctx); err == nil && sameURL(loc, want) {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("login did not reach %s within %s", want, timeout)
			case <-ticker.C:
			}
		}
	}
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

// JoinCookies renders cookies as "name=value; name=value".
func JoinCookies(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
