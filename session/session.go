// Package session manages the authenticated HTTP session against the
// procurement portal: login, cookie persistence, throttled fetches and
// transparent re-login when the session expires mid-run.
package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"philgeps-scraper/config"
)

// ErrAuthentication indicates login could not be established.
type ErrAuthentication struct {
	Err error
}

func (e *ErrAuthentication) Error() string {
	return fmt.Errorf("authentication: %w", e.Err).Error()
}

func (e *ErrAuthentication) Unwrap() error { return e.Err }

// ErrSessionExpired indicates the portal bounced a request back to its
// login page after the session had been established.
type ErrSessionExpired struct {
	URL string
}

func (e *ErrSessionExpired) Error() string {
	return fmt.Sprintf("session expired: redirected to %s", e.URL)
}

// Page is the result of one fetch: the parsed document plus the final
// URL after any redirects, which is what session-expiry detection keys on.
type Page struct {
	URL string
	Doc *goquery.Document
}

// Session wraps a cookie-carrying HTTP client. All fetches go through a
// shared throttle so the portal sees at most one request per configured
// delay interval, regardless of which phase issues it.
type Session struct {
	cfg    *config.Config
	client *resty.Client
	log    *slog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// New builds an unauthenticated session. Call Login before fetching.
func New(cfg *config.Config, logger *slog.Logger) (*Session, error) {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetTimeout(cfg.Timeout)

	return &Session{cfg: cfg, client: client, log: logger}, nil
}

// Client exposes the underlying resty client, primarily for tests to
// install a mock transport.
func (s *Session) Client() *resty.Client { return s.client }

// Login establishes an authenticated session. With credentials it
// performs a form login against the login page; without credentials it
// polls the portal until an authenticated page appears or the manual
// login window runs out.
func (s *Session) Login(ctx context.Context) error {
	if s.cfg.HasCredentials() {
		return s.formLogin(ctx)
	}

	s.log.Info("no credentials configured, waiting for session to appear",
		slog.Duration("timeout", s.cfg.ManualLoginTimeout))
	return s.waitForSession(ctx)
}

func (s *Session) formLogin(ctx context.Context) error {
	res, err := s.request(ctx, s.cfg.LoginURL())
	if err != nil {
		return &ErrAuthentication{Err: fmt.Errorf("fetching login page: %w", err)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return &ErrAuthentication{Err: fmt.Errorf("parsing login page: %w", err)}
	}

	form := map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	}
	// Some deployments protect the form with a hidden CSRF token.
	if token := doc.Find(`input[name="_csrfToken"]`).AttrOr("value", ""); token != "" {
		form["_csrfToken"] = token
	}

	action := doc.Find("form").AttrOr("action", s.cfg.LoginPath)
	if err := s.throttle(ctx); err != nil {
		return err
	}
	res, err = s.client.R().SetContext(ctx).SetFormData(form).Post(action)
	if err != nil {
		return &ErrAuthentication{Err: fmt.Errorf("submitting login form: %w", err)}
	}

	if !isAuthenticated(string(res.Body())) {
		// The POST response may be an intermediate redirect page.
		page, err := s.fetchOnce(ctx, s.cfg.ListingURL(1))
		if err != nil {
			return &ErrAuthentication{Err: fmt.Errorf("verifying login: %w", err)}
		}
		html, _ := page.Doc.Html()
		if !isAuthenticated(html) {
			return &ErrAuthentication{Err: fmt.Errorf("login form rejected for user %q", s.cfg.Username)}
		}
	}

	s.log.Info("login established", slog.String("user", s.cfg.Username))
	return nil
}

// waitForSession polls the listing page for authenticated-page markers.
// This covers portals that allow anonymous listing access as well as a
// session established out of band (shared cookie state).
func (s *Session) waitForSession(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ManualLoginTimeout)
	interval := 10 * time.Second
	for {
		page, err := s.fetchOnce(ctx, s.cfg.ListingURL(1))
		if err == nil {
			html, _ := page.Doc.Html()
			if isAuthenticated(html) && !looksLikeLogin(page.URL) {
				s.log.Info("session detected")
				return nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &ErrAuthentication{Err: fmt.Errorf("no session appeared within %s", s.cfg.ManualLoginTimeout)}
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return &ErrAuthentication{Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

// Fetch retrieves and parses a page. When the portal redirects to its
// login page the session is re-established and the fetch retried once;
// a second bounce surfaces as ErrSessionExpired.
func (s *Session) Fetch(ctx context.Context, url string) (*Page, error) {
	page, err := s.fetchOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	if !looksLikeLogin(page.URL) {
		return page, nil
	}

	s.log.Warn("session expired, re-authenticating", slog.String("url", url))
	if err := s.Login(ctx); err != nil {
		return nil, err
	}
	page, err = s.fetchOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	if looksLikeLogin(page.URL) {
		return nil, &ErrSessionExpired{URL: page.URL}
	}
	return page, nil
}

func (s *Session) fetchOnce(ctx context.Context, url string) (*Page, error) {
	res, err := s.request(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}

	finalURL := url
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	return &Page{URL: finalURL, Doc: doc}, nil
}

func (s *Session) request(ctx context.Context, url string) (*resty.Response, error) {
	if err := s.throttle(ctx); err != nil {
		return nil, err
	}
	res, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	return res, nil
}

// throttle enforces the inter-request delay across all callers.
func (s *Session) throttle(ctx context.Context) error {
	s.mu.Lock()
	wait := s.cfg.RequestDelay - time.Since(s.lastRequest)
	if wait < 0 {
		wait = 0
	}
	s.lastRequest = time.Now().Add(wait)
	s.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

var authMarkers = []string{"logout", "dashboard", "bulletin", "merchant"}

func isAuthenticated(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func looksLikeLogin(url string) bool {
	return strings.Contains(strings.ToLower(url), "login")
}
