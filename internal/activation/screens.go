package activation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OptionalScreen describes one interstitial that may or may not appear. A
// screen is detected either by any of its equivalent element conditions
// becoming visible, or by the browser having been redirected to a URL
// containing URLFragment.
type OptionalScreen struct {
	Name        string
	Conditions  []string // equivalent visibility conditions; any one suffices
	URLFragment string   // alternative detection: substring of the current URL
	Dismiss     string   // element clicked when the screen is present
	// FatalOnDismissFailure marks screens that block the flow when detected
	// but not dismissible (the multi-factor prompt).
	FatalOnDismissFailure bool
}

// probeInterval bounds each individual visibility check inside a wait budget,
// so that a multi-condition screen cycles through all its variants instead of
// spending the whole budget on the first one.
const probeInterval = 500 * time.Millisecond

// Detector resolves optional screens without ever treating absence as an
// error. Detection is unconditional: a missing screen never blocks later
// checks.
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a screen detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("screens")}
}

// ResolveOptional waits up to budget for the screen to reveal itself. When a
// condition appears the dismissal click is performed and Present is returned;
// when nothing appears within budget the screen is Absent and the caller
// proceeds without error.
func (d *Detector) ResolveOptional(ctx context.Context, s Session, screen OptionalScreen, budget time.Duration) (Presence, error) {
	log := d.logger.With(zap.String("screen", screen.Name))

	if screen.URLFragment != "" {
		return d.resolveByURL(ctx, s, screen, budget, log)
	}

	deadline := time.Now().Add(budget)
	for {
		if err := ctx.Err(); err != nil {
			return Absent, err
		}

		for _, condition := range screen.Conditions {
			probe := probeInterval
			if remaining := time.Until(deadline); remaining < probe {
				probe = remaining
			}
			if probe <= 0 {
				break
			}
			if err := s.WaitVisible(ctx, condition, probe); err == nil {
				log.Info("Optional screen detected, dismissing.")
				if err := s.Click(ctx, screen.Dismiss, budget); err != nil {
					return Present, fmt.Errorf("screen '%s' detected but dismissal failed: %w", screen.Name, err)
				}
				return Present, nil
			}
		}

		if time.Now().After(deadline) {
			log.Debug("Optional screen not present, proceeding.")
			return Absent, nil
		}
	}
}

// resolveByURL detects a screen by the browser having been redirected to a
// distinct path rather than by element visibility.
func (d *Detector) resolveByURL(ctx context.Context, s Session, screen OptionalScreen, budget time.Duration, log *zap.Logger) (Presence, error) {
	location, err := s.Location(ctx)
	if err != nil {
		return Absent, fmt.Errorf("failed to check location for screen '%s': %w", screen.Name, err)
	}

	if !strings.Contains(location, screen.URLFragment) {
		log.Debug("Optional screen not present, proceeding.", zap.String("location", location))
		return Absent, nil
	}

	log.Warn("Optional screen detected via URL, dismissing.", zap.String("location", location))
	if err := s.Click(ctx, screen.Dismiss, budget); err != nil {
		if screen.FatalOnDismissFailure {
			return Present, fmt.Errorf("screen '%s' encountered but could not be bypassed: %w", screen.Name, err)
		}
		return Present, fmt.Errorf("screen '%s' detected but dismissal failed: %w", screen.Name, err)
	}
	return Present, nil
}

// cookieScreen is resolved before login; the accept button text depends on
// the language the banner happens to render in.
func cookieScreen() OptionalScreen {
	return OptionalScreen{
		Name:       "cookie_banner",
		Conditions: []string{queryCookieAcceptPL, queryCookieAcceptEN},
		Dismiss:    queryCookieAcceptPL + " | " + queryCookieAcceptEN,
	}
}

// postLoginScreens is the fixed ordered list of interstitials checked after
// credentials are submitted. Order matters: the skip/next screens only show
// if the MFA prompt did not redirect away, and every screen is checked
// unconditionally so a missing one never blocks the rest.
func postLoginScreens() []OptionalScreen {
	return []OptionalScreen{
		{
			Name:                  "mfa_prompt",
			URLFragment:           mfaURLFragment,
			Dismiss:               queryMFARemindLater,
			FatalOnDismissFailure: true,
		},
		{
			Name:       "skip_interstitial",
			Conditions: []string{querySkipButton},
			Dismiss:    querySkipButton,
		},
		{
			Name:       "next_interstitial",
			Conditions: []string{queryNextButton},
			Dismiss:    queryNextButton,
		},
	}
}
