package scraper

import "testing"

func TestValidTransitions(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusRunning},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCancelled},
		{StatusRunning, StatusSucceeded},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusCancelled},
	}
	for _, tr := range allowed {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", tr[0], tr[1], err)
		}
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	terminals := []Status{StatusSucceeded, StatusFailed, StatusCancelled}
	targets := []Status{StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled}
	for _, from := range terminals {
		for _, to := range targets {
			if err := ValidateTransition(from, to); err == nil {
				t.Fatalf("expected %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	if err := ValidateTransition(StatusPending, StatusSucceeded); err == nil {
		t.Fatal("pending cannot skip straight to succeeded")
	}
	if err := ValidateTransition(StatusRunning, StatusPending); err == nil {
		t.Fatal("running cannot return to pending")
	}
	if err := ValidateTransition(Status("bogus"), StatusRunning); err == nil {
		t.Fatal("unknown source status must be rejected")
	}
}

func TestStatusClassification(t *testing.T) {
	if !IsActive(StatusPending) || !IsActive(StatusRunning) {
		t.Fatal("pending and running should block new runs")
	}
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusCancelled} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		if IsActive(s) {
			t.Fatalf("terminal status %s should not block new runs", s)
		}
	}
}
