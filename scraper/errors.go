package scraper

import (
	"errors"
	"fmt"

	"philgeps-scraper/session"
	"philgeps-scraper/store"
)

// ErrExtraction indicates page content did not match the expected layout.
type ErrExtraction struct {
	Err error
}

func (e ErrExtraction) Error() string {
	return fmt.Errorf("extraction: %w", e.Err).Error()
}

func (e ErrExtraction) Unwrap() error {
	return e.Err
}

// ErrDetailFetch indicates a bid's detail page could not be retrieved or
// parsed. The record keeps its listing fields when this happens.
type ErrDetailFetch struct {
	Reference string
	Err       error
}

func (e ErrDetailFetch) Error() string {
	return fmt.Errorf("detail_fetch %s: %w", e.Reference, e.Err).Error()
}

func (e ErrDetailFetch) Unwrap() error {
	return e.Err
}

// ErrorCategory maps an error to its reporting label.
func ErrorCategory(err error) string {
	if err == nil {
		return "unknown"
	}
	var auth *session.ErrAuthentication
	if errors.As(err, &auth) {
		return "authentication"
	}
	var expired *session.ErrSessionExpired
	if errors.As(err, &expired) {
		return "session_expired"
	}
	var detail ErrDetailFetch
	if errors.As(err, &detail) {
		return "detail_fetch"
	}
	var extraction ErrExtraction
	if errors.As(err, &extraction) {
		return "extraction"
	}
	var persistence store.ErrPersistence
	if errors.As(err, &persistence) {
		return "persistence"
	}
	return "other"
}
