package activation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// Protocol identifies one mail-retrieval protocol toggle on the settings
// page: the label control carrying the on/off text, and the confirmation
// element that must appear after a click before the toggle counts as done.
type Protocol struct {
	Name    string
	Toggle  string
	Confirm string
}

// POP3 and IMAP are the two protocols enabled per account. The two calls are
// independent and order-insensitive.
var (
	POP3 = Protocol{Name: "POP3", Toggle: queryPOP3Toggle, Confirm: queryPOP3Enabled}
	IMAP = Protocol{Name: "IMAP", Toggle: queryIMAPToggle, Confirm: queryIMAPEnabled}
)

// Toggler navigates from the inbox to the settings page and flips protocol
// toggles idempotently: a toggle already showing the enabled state is never
// clicked, and a click only counts once the UI confirms the new state.
type Toggler struct {
	cfg         config.ActivationConfig
	settingsURL *regexp.Regexp
	logger      *zap.Logger
}

// NewToggler creates a protocol toggler. The settings URL pattern comes from
// validated configuration.
func NewToggler(cfg config.ActivationConfig, logger *zap.Logger) (*Toggler, error) {
	pattern, err := regexp.Compile(cfg.SettingsURLPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid settings URL pattern: %w", err)
	}
	return &Toggler{
		cfg:         cfg,
		settingsURL: pattern,
		logger:      logger.Named("protocols"),
	}, nil
}

// NavigateToSettings waits for the inbox to finish loading (signalled by the
// compose control), opens the application menu, follows the settings link,
// and asserts the browser landed on the settings domain. If the toggles are
// not immediately visible it tolerates one extra tab-selection click before
// giving up.
func (t *Toggler) NavigateToSettings(ctx context.Context, s Session) error {
	t.logger.Info("Waiting for inbox to load.")
	if err := t.waitAnyVisible(ctx, s, []string{queryComposePL, queryComposeEN}, t.cfg.InboxWait); err != nil {
		return &NavigationError{Expected: "inbox (compose control)", Err: err}
	}

	t.logger.Debug("Inbox loaded, opening application menu.")
	if err := s.Click(ctx, queryMenuButton, t.cfg.MenuWait); err != nil {
		return &NavigationError{Expected: "application menu", Err: err}
	}
	if err := s.Click(ctx, querySettingsLink, t.cfg.MenuWait); err != nil {
		return &NavigationError{Expected: "settings link", Err: err}
	}

	if err := t.awaitSettingsURL(ctx, s); err != nil {
		return err
	}
	t.logger.Info("Settings page reached.")

	// Multi-tab settings layouts hide the protocol section behind the main
	// account tab. One extra click is tolerated; a second miss is fatal.
	if err := s.WaitVisible(ctx, queryPOP3Toggle, t.cfg.ToggleProbeWait); err != nil {
		t.logger.Info("Protocol toggles not immediately visible, selecting main account tab.")
		if err := s.Click(ctx, queryMainAccountTab, t.cfg.MenuWait); err != nil {
			return &NavigationError{Expected: "main account tab", Err: err}
		}
		if err := s.WaitVisible(ctx, queryPOP3Toggle, t.cfg.ToggleVisibleWait); err != nil {
			return &NavigationError{Expected: "protocol toggles", Err: err}
		}
	}
	return nil
}

// EnsureEnabled flips the protocol on if the UI shows it disabled, requiring
// the post-click confirmation before returning. Calling it again once the
// protocol is enabled is a no-op.
func (t *Toggler) EnsureEnabled(ctx context.Context, s Session, p Protocol) (ToggleState, error) {
	log := t.logger.With(zap.String("protocol", p.Name))

	state, err := s.Text(ctx, p.Toggle, t.cfg.ToggleVisibleWait)
	if err != nil {
		return AlreadyEnabled, &ToggleError{Protocol: p.Name, Err: fmt.Errorf("toggle control never became visible: %w", err)}
	}

	if !strings.Contains(state, disabledMarker) {
		log.Info("Protocol already enabled, no action taken.")
		return AlreadyEnabled, nil
	}

	log.Info("Protocol is off, enabling.")
	if err := s.Click(ctx, p.Toggle, t.cfg.ToggleVisibleWait); err != nil {
		return AlreadyEnabled, &ToggleError{Protocol: p.Name, Err: fmt.Errorf("toggle click failed: %w", err)}
	}

	// Confirmation, not assumption: a click that silently fails to register
	// must not count as success.
	if err := s.WaitVisible(ctx, p.Confirm, t.cfg.ToggleConfirmWait); err != nil {
		return AlreadyEnabled, &ToggleError{Protocol: p.Name, Err: fmt.Errorf("UI never confirmed enabled state: %w", err)}
	}

	if err := t.settle(ctx); err != nil {
		return EnabledNow, err
	}

	log.Info("Protocol enabled and confirmed.")
	return EnabledNow, nil
}

// awaitSettingsURL polls the browser location until it matches the settings
// domain pattern or the budget elapses.
func (t *Toggler) awaitSettingsURL(ctx context.Context, s Session) error {
	deadline := time.Now().Add(t.cfg.SettingsURLWait)
	var lastLocation string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		location, err := s.Location(ctx)
		if err == nil {
			lastLocation = location
			if t.settingsURL.MatchString(location) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return &NavigationError{
				Expected: t.settingsURL.String(),
				Err:      fmt.Errorf("location still '%s' after %s: %w", lastLocation, t.cfg.SettingsURLWait, context.DeadlineExceeded),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probeInterval):
		}
	}
}

// waitAnyVisible succeeds as soon as any of the equivalent queries becomes
// visible within the budget.
func (t *Toggler) waitAnyVisible(ctx context.Context, s Session, queries []string, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, q := range queries {
			probe := probeInterval
			if remaining := time.Until(deadline); remaining < probe {
				probe = remaining
			}
			if probe <= 0 {
				break
			}
			if err := s.WaitVisible(ctx, q, probe); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("none of %d equivalent conditions appeared within %s: %w", len(queries), budget, lastErr)
		}
	}
}

// settle pauses briefly after a confirmed toggle so the server-side write
// lands before the next interaction.
func (t *Toggler) settle(ctx context.Context) error {
	if t.cfg.ToggleSettleWait <= 0 {
		return nil
	}
	select {
	case <-time.After(t.cfg.ToggleSettleWait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
