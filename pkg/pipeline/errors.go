package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrRunNotFound       = errors.New("scraper run not found")
	ErrCandidateNotFound = errors.New("candidate product not found")
	ErrUnknownSource     = errors.New("unknown source domain")
)

// NetworkError marks a transient fetch failure. The fetch queue retries these
// with backoff up to the configured attempt cap.
type NetworkError struct {
	Err        error
	StatusCode int
}

func (e NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

func IsNetworkError(err error) bool {
	var ne NetworkError
	return errors.As(err, &ne)
}

// PolicyError means robots.txt disallows the discovery path. Fatal to the run;
// recorded before any product fetch happens.
type PolicyError struct {
	Domain string
	Path   string
}

func (e PolicyError) Error() string {
	return fmt.Sprintf("robots.txt for %s disallows %s", e.Domain, e.Path)
}

func IsPolicyError(err error) bool {
	var pe PolicyError
	return errors.As(err, &pe)
}

// ParseError covers a single unusable record. The run continues; error_count
// is incremented. Never retried.
type ParseError struct {
	SourceURL string
	Err       error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error for %s: %v", e.SourceURL, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

func IsParseError(err error) bool {
	var pe ParseError
	return errors.As(err, &pe)
}

// ValidationError covers bad candidate data or malformed promotion input.
// Records are skipped and counted; promotions are rejected outright.
type ValidationError struct {
	Reason error
}

func (e ValidationError) Error() string {
	return e.Reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.Reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ConflictError is returned when a run is requested for a source domain that
// already has a non-terminal run.
type ConflictError struct {
	Domain string
	RunID  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("active run %s already exists for source %s", e.RunID, e.Domain)
}

func IsConflictError(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// ConsistencyError means a promotion invariant was violated and the whole
// transaction was rolled back. Staging is left untouched.
type ConsistencyError struct {
	Err error
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("promotion rolled back: %v", e.Err)
}

func (e ConsistencyError) Unwrap() error {
	return e.Err
}

func IsConsistencyError(err error) bool {
	var ce ConsistencyError
	return errors.As(err, &ce)
}

// AdapterError is a source-wide fatal condition (authentication failure, ban).
// It fails the whole run.
type AdapterError struct {
	Domain string
	Err    error
}

func (e AdapterError) Error() string {
	return fmt.Sprintf("adapter failure for %s: %v", e.Domain, e.Err)
}

func (e AdapterError) Unwrap() error {
	return e.Err
}

func IsAdapterError(err error) bool {
	var ae AdapterError
	return errors.As(err, &ae)
}
