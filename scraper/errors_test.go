package scraper

import (
	"errors"
	"fmt"
	"testing"

	"philgeps-scraper/session"
	"philgeps-scraper/store"
)

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "authentication", err: &session.ErrAuthentication{Err: errors.New("rejected")}, expected: "authentication"},
		{name: "session expired", err: &session.ErrSessionExpired{URL: "http://example.test/login"}, expected: "session_expired"},
		{name: "extraction", err: ErrExtraction{Err: errors.New("no table")}, expected: "extraction"},
		{name: "detail fetch", err: ErrDetailFetch{Reference: "REF-001", Err: errors.New("timeout")}, expected: "detail_fetch"},
		{name: "persistence", err: store.ErrPersistence{Reference: "REF-001", Err: errors.New("locked")}, expected: "persistence"},
		{name: "wrapped detail fetch", err: fmt.Errorf("outer: %w", ErrDetailFetch{Reference: "REF-002", Err: errors.New("boom")}), expected: "detail_fetch"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCategory(tt.err); got != tt.expected {
				t.Fatalf("ErrorCategory(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := ErrDetailFetch{Reference: "REF-001", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("wrapped cause should be reachable through Unwrap")
	}
}
