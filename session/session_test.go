package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"philgeps-scraper/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.RequestDelay = 0
	cfg.Username = "tester"
	cfg.Password = "secret"
	return cfg
}

func newTestSession(t *testing.T, cfg *config.Config) (*Session, *httpmock.MockTransport) {
	t.Helper()
	sess, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	transport := httpmock.NewMockTransport()
	sess.Client().GetClient().Transport = transport
	return sess, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

const loginForm = `<html><body>
<form action="/Indexes/login" method="post">
<input name="username" type="text"/>
<input name="password" type="password"/>
</form>
</body></html>`

const authenticatedPage = `<html><body><a href="/logout">Logout</a></body></html>`

func TestFormLoginSuccess(t *testing.T) {
	cfg := testConfig()
	sess, transport := newTestSession(t, cfg)

	transport.RegisterResponder("GET", cfg.LoginURL(), htmlResponder(loginForm))
	transport.RegisterResponder("POST", cfg.LoginURL(), htmlResponder(authenticatedPage))

	if err := sess.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	counts := transport.GetCallCountInfo()
	if counts["POST "+cfg.LoginURL()] != 1 {
		t.Fatalf("login form should be posted once, counts = %v", counts)
	}
}

func TestFormLoginRejected(t *testing.T) {
	cfg := testConfig()
	sess, transport := newTestSession(t, cfg)

	transport.RegisterResponder("GET", cfg.LoginURL(), htmlResponder(loginForm))
	transport.RegisterResponder("POST", cfg.LoginURL(),
		htmlResponder(`<html><body>invalid credentials</body></html>`))
	transport.RegisterResponder("GET", cfg.ListingURL(1),
		htmlResponder(`<html><body>please sign in</body></html>`))

	err := sess.Login(context.Background())
	var authErr *ErrAuthentication
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want ErrAuthentication", err)
	}
}

func TestFetchReloginOnExpiry(t *testing.T) {
	cfg := testConfig()
	sess, transport := newTestSession(t, cfg)

	transport.RegisterResponder("GET", cfg.LoginURL(), htmlResponder(loginForm))
	transport.RegisterResponder("POST", cfg.LoginURL(), htmlResponder(authenticatedPage))

	dataURL := "http://example.test/Bids/view/REF-001"
	calls := 0
	transport.RegisterResponder("GET", dataURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := httpmock.NewStringResponse(http.StatusFound, "")
			resp.Header.Set("Location", cfg.LoginURL())
			return resp, nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html><body>bid detail</body></html>"), nil
	})

	page, err := sess.Fetch(context.Background(), dataURL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("data URL fetched %d times, want 2 (original + retry)", calls)
	}
	if page.URL != dataURL {
		t.Fatalf("final url = %q, want %q", page.URL, dataURL)
	}
}

func TestFetchSessionExpiredAfterRetry(t *testing.T) {
	cfg := testConfig()
	sess, transport := newTestSession(t, cfg)

	transport.RegisterResponder("GET", cfg.LoginURL(), htmlResponder(loginForm))
	transport.RegisterResponder("POST", cfg.LoginURL(), htmlResponder(authenticatedPage))

	dataURL := "http://example.test/Bids/view/REF-002"
	transport.RegisterResponder("GET", dataURL, func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", cfg.LoginURL())
		return resp, nil
	})

	_, err := sess.Fetch(context.Background(), dataURL)
	var expired *ErrSessionExpired
	if !errors.As(err, &expired) {
		t.Fatalf("error = %v, want ErrSessionExpired", err)
	}
}

func TestLoginWithoutCredentials(t *testing.T) {
	t.Run("session appears", func(t *testing.T) {
		cfg := testConfig()
		cfg.Username = ""
		cfg.Password = ""
		sess, transport := newTestSession(t, cfg)

		transport.RegisterResponder("GET", cfg.ListingURL(1),
			htmlResponder(`<html><body>bulletin board listing</body></html>`))

		if err := sess.Login(context.Background()); err != nil {
			t.Fatalf("login: %v", err)
		}
	})

	t.Run("times out", func(t *testing.T) {
		cfg := testConfig()
		cfg.Username = ""
		cfg.Password = ""
		cfg.ManualLoginTimeout = time.Millisecond
		sess, transport := newTestSession(t, cfg)

		transport.RegisterResponder("GET", cfg.ListingURL(1),
			htmlResponder(`<html><body>please sign in</body></html>`))

		err := sess.Login(context.Background())
		var authErr *ErrAuthentication
		if !errors.As(err, &authErr) {
			t.Fatalf("error = %v, want ErrAuthentication", err)
		}
	})
}

func TestThrottleSpacesRequests(t *testing.T) {
	cfg := testConfig()
	cfg.RequestDelay = 30 * time.Millisecond
	sess, transport := newTestSession(t, cfg)

	url := "http://example.test/page"
	transport.RegisterResponder("GET", url, htmlResponder("<html><body>ok</body></html>"))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := sess.Fetch(context.Background(), url); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*cfg.RequestDelay {
		t.Fatalf("three fetches took %v, want at least %v", elapsed, 2*cfg.RequestDelay)
	}
}
