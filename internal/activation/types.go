// Package activation implements the per-account state machine that logs into
// a webmail account, works through whatever optional interstitial screens the
// service decides to show, and idempotently enables the IMAP and POP3
// protocols on the settings page.
package activation

import (
	"context"
	"time"
)

// AccountRecord identifies one pending account. Immutable once fetched;
// Handle is the opaque record-store identifier used for status reporting.
type AccountRecord struct {
	Handle   string
	Email    string
	Password string
}

// Outcome is the terminal state of one account's activation attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ActivationResult is produced exactly once per account by the workflow and
// consumed exactly once by the orchestrator for reporting.
type ActivationResult struct {
	Handle  string
	Email   string
	Outcome Outcome
	Detail  string
}

// Status is the value reported to the record store for one account.
type Status string

const (
	StatusEnabled Status = "enabled"
	StatusError   Status = "error"
)

// Presence is the verdict of an optional-screen check.
type Presence int

const (
	// Absent means no equivalent condition appeared within the wait budget.
	// This is a normal outcome, never an error.
	Absent Presence = iota
	// Present means a condition appeared and the dismissal action was taken.
	Present
)

// ToggleState reports what EnsureEnabled did for one protocol.
type ToggleState int

const (
	// AlreadyEnabled means the control showed the enabled state and no click
	// was issued.
	AlreadyEnabled ToggleState = iota
	// EnabledNow means the control was clicked and the UI confirmed the new
	// state.
	EnabledNow
)

func (t ToggleState) String() string {
	if t == EnabledNow {
		return "enabled now"
	}
	return "already enabled"
}

// Session is the browser surface the activation flow drives. The concrete
// implementation lives in internal/browser; tests substitute a mock.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, query string, timeout time.Duration) error
	Click(ctx context.Context, query string, timeout time.Duration) error
	Fill(ctx context.Context, query, text string, timeout time.Duration) error
	Text(ctx context.Context, query string, timeout time.Duration) (string, error)
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}
