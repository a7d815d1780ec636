package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpersMatchWrappedErrors(t *testing.T) {
	base := errors.New("connection refused")

	cases := []struct {
		err     error
		matches func(error) bool
		name    string
	}{
		{NetworkError{Err: base}, IsNetworkError, "network"},
		{PolicyError{Domain: "fnac.com", Path: "/private"}, IsPolicyError, "policy"},
		{ParseError{SourceURL: "https://fnac.com/p/1", Err: base}, IsParseError, "parse"},
		{ValidationError{Reason: base}, IsValidationError, "validation"},
		{ConflictError{Domain: "fnac.com", RunID: "run-1"}, IsConflictError, "conflict"},
		{ConsistencyError{Err: base}, IsConsistencyError, "consistency"},
		{AdapterError{Domain: "fnac.com", Err: base}, IsAdapterError, "adapter"},
	}

	for _, c := range cases {
		if !c.matches(c.err) {
			t.Fatalf("%s helper did not match its own type", c.name)
		}
		wrapped := fmt.Errorf("fetch failed: %w", c.err)
		if !c.matches(wrapped) {
			t.Fatalf("%s helper did not match through wrapping", c.name)
		}
	}
}

func TestErrorHelpersDoNotCrossMatch(t *testing.T) {
	netErr := NetworkError{Err: errors.New("timeout")}
	if IsParseError(netErr) || IsPolicyError(netErr) || IsAdapterError(netErr) {
		t.Fatal("network error matched an unrelated helper")
	}
	if IsNetworkError(errors.New("plain")) {
		t.Fatal("plain error matched as network error")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	for _, err := range []error{
		NetworkError{Err: cause},
		ParseError{SourceURL: "https://fnac.com/p/1", Err: cause},
		ValidationError{Reason: cause},
		ConsistencyError{Err: cause},
		AdapterError{Domain: "fnac.com", Err: cause},
	} {
		if !errors.Is(err, cause) {
			t.Fatalf("%T does not unwrap to its cause", err)
		}
	}
}

func TestNetworkErrorMessageIncludesStatus(t *testing.T) {
	err := NetworkError{Err: errors.New("server error"), StatusCode: 503}
	if got := err.Error(); got != "network error (status 503): server error" {
		t.Fatalf("unexpected message: %s", got)
	}
}
