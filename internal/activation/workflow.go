package activation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// SessionFactory yields a fresh isolated browsing session for one account
// attempt. The workflow guarantees the session is closed on every exit path.
type SessionFactory func(ctx context.Context) (Session, error)

// Workflow composes the screen detector, login sequencer, and protocol
// toggler into one linear attempt per account. It holds no mutable state, so
// one instance is safe to run concurrently across accounts.
type Workflow struct {
	cfg       *config.Config
	newSess   SessionFactory
	detector  *Detector
	sequencer *Sequencer
	toggler   *Toggler
	logger    *zap.Logger
}

// NewWorkflow wires the workflow's components.
func NewWorkflow(cfg *config.Config, newSess SessionFactory, logger *zap.Logger) (*Workflow, error) {
	if cfg == nil || newSess == nil {
		return nil, fmt.Errorf("cannot initialize workflow with nil dependencies")
	}

	toggler, err := NewToggler(cfg.Activation, logger)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		cfg:       cfg,
		newSess:   newSess,
		detector:  NewDetector(logger),
		sequencer: NewSequencer(cfg.Activation, logger),
		toggler:   toggler,
		logger:    logger.Named("workflow"),
	}, nil
}

// Activate runs the full state machine for one account:
// session-acquired, cookie-screen-resolved, login-complete,
// post-login-screens-resolved, inbox-confirmed, settings-reached,
// pop3-ensured, imap-ensured, success. The first failing step terminates the
// attempt with a Failure result; the session is always released.
func (w *Workflow) Activate(ctx context.Context, account AccountRecord) ActivationResult {
	log := w.logger.With(zap.String("email", account.Email))
	log.Info("Starting account activation.")

	session, err := w.newSess(ctx)
	if err != nil {
		log.Error("Failed to acquire browser session.", zap.Error(err))
		return w.failure(account, fmt.Errorf("session acquisition failed: %w", err))
	}
	defer func() {
		// The session must be released even when ctx is already dead.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := session.Close(closeCtx); err != nil {
			log.Warn("Session close reported an error.", zap.Error(err))
		}
	}()

	if err := w.run(ctx, session, account, log); err != nil {
		w.captureDiagnostics(session, account, log)
		log.Error("Account activation failed.", zap.Error(err))
		return w.failure(account, err)
	}

	log.Info("IMAP and POP3 configuration complete.")
	return ActivationResult{
		Handle:  account.Handle,
		Email:   account.Email,
		Outcome: OutcomeSuccess,
		Detail:  "IMAP and POP3 enabled",
	}
}

// run walks the steps in order and returns the first failure.
func (w *Workflow) run(ctx context.Context, session Session, account AccountRecord, log *zap.Logger) error {
	if err := session.Navigate(ctx, w.cfg.Activation.LoginURL); err != nil {
		return &NavigationError{Expected: w.cfg.Activation.LoginURL, Err: err}
	}

	if _, err := w.detector.ResolveOptional(ctx, session, cookieScreen(), w.cfg.Activation.CookieBannerWait); err != nil {
		return err
	}

	if err := w.sequencer.Login(ctx, session, account); err != nil {
		return err
	}

	for _, screen := range postLoginScreens() {
		budget := w.screenBudget(screen)
		if _, err := w.detector.ResolveOptional(ctx, session, screen, budget); err != nil {
			return err
		}
	}

	if err := w.toggler.NavigateToSettings(ctx, session); err != nil {
		return err
	}

	for _, protocol := range []Protocol{POP3, IMAP} {
		state, err := w.toggler.EnsureEnabled(ctx, session, protocol)
		if err != nil {
			return err
		}
		log.Debug("Protocol ensured.", zap.String("protocol", protocol.Name), zap.String("state", state.String()))
	}

	return nil
}

// screenBudget maps each post-login screen to its configured wait budget.
func (w *Workflow) screenBudget(screen OptionalScreen) time.Duration {
	switch screen.Name {
	case "mfa_prompt":
		return w.cfg.Activation.MFADismissWait
	case "skip_interstitial":
		return w.cfg.Activation.SkipScreenWait
	default:
		return w.cfg.Activation.NextScreenWait
	}
}

// captureDiagnostics takes a best-effort screenshot of the failed page state.
// A screenshot failure must not mask the original error.
func (w *Workflow) captureDiagnostics(session Session, account AccountRecord, log *zap.Logger) {
	shotCtx, shotCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shotCancel()

	path := ScreenshotPath(account.Email)
	if err := session.Screenshot(shotCtx, path); err != nil {
		log.Warn("Could not capture diagnostic screenshot.", zap.Error(err))
	}
}

// ScreenshotPath names the diagnostic artifact deterministically from the
// account's email address.
func ScreenshotPath(email string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, email)
	return fmt.Sprintf("error_screenshot_%s.png", sanitized)
}

func (w *Workflow) failure(account AccountRecord, err error) ActivationResult {
	return ActivationResult{
		Handle:  account.Handle,
		Email:   account.Email,
		Outcome: OutcomeFailure,
		Detail:  err.Error(),
	}
}
