package activation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

func fastConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Activation = fastActivationConfig()
	return cfg
}

// fullFlowSession scripts an account whose every screen behaves: cookie
// banner present, no MFA redirect, no interstitials, both protocols off.
func fullFlowSession() *fakeSession {
	s := newFakeSession()
	s.setVisible(queryCookieAcceptPL, true)
	s.setVisible(queryEmailInput, true)
	s.setVisible(queryNextButton, true)
	s.setVisible(queryPasswordInput, true)
	s.setVisible(queryLoginButton, true)
	s.setVisible(queryComposePL, true)
	s.setVisible(queryMenuButton, true)
	s.setVisible(querySettingsLink, true)
	s.setText(queryPOP3Toggle, "Wyłączony")
	s.setText(queryIMAPToggle, "Wyłączony")
	s.onClick = func(f *fakeSession, query string) {
		switch query {
		case querySettingsLink:
			f.mu.Lock()
			f.location = "https://ustawienia.poczta.onet.pl/"
			f.visible[queryPOP3Toggle] = true
			f.mu.Unlock()
		case queryPOP3Toggle:
			f.setText(queryPOP3Toggle, "Włączony")
			f.setVisible(queryPOP3Enabled, true)
		case queryIMAPToggle:
			f.setText(queryIMAPToggle, "Włączony")
			f.setVisible(queryIMAPEnabled, true)
		}
	}
	return s
}

func factoryFor(s *fakeSession) SessionFactory {
	return func(ctx context.Context) (Session, error) { return s, nil }
}

func TestActivate_FullFlowSucceeds(t *testing.T) {
	s := fullFlowSession()
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	account := AccountRecord{Handle: "rec1", Email: "user@op.pl", Password: "pw"}
	res := w.Activate(context.Background(), account)

	assert.Equal(t, OutcomeSuccess, res.Outcome, "detail: %s", res.Detail)
	assert.Equal(t, "rec1", res.Handle)
	assert.True(t, s.closed, "session must be released on success")
	assert.Empty(t, s.screenshots)
	assert.Equal(t, 1, s.clickCount(queryPOP3Toggle))
	assert.Equal(t, 1, s.clickCount(queryIMAPToggle))
}

func TestActivate_AlreadyEnabledProtocolsStillSucceed(t *testing.T) {
	s := fullFlowSession()
	s.setText(queryPOP3Toggle, "Włączony")
	s.setText(queryIMAPToggle, "Włączony")
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec1", Email: "user@op.pl"})

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, s.clickCount(queryPOP3Toggle))
	assert.Equal(t, 0, s.clickCount(queryIMAPToggle))
}

func TestActivate_LoginFailureProducesScreenshotAndFailure(t *testing.T) {
	s := newFakeSession() // no login form ever appears
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec2", Email: "broken@op.pl"})

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.NotEmpty(t, res.Detail)
	assert.True(t, s.closed, "session must be released on failure")
	require.Len(t, s.screenshots, 1)
	assert.Equal(t, "error_screenshot_broken@op.pl.png", s.screenshots[0])
}

func TestActivate_ScreenshotFailureDoesNotMaskCause(t *testing.T) {
	s := newFakeSession()
	s.screenshotErr = errors.New("no space left on device")
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec3", Email: "user@op.pl"})

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.NotContains(t, res.Detail, "no space left on device")
	assert.True(t, s.closed)
}

func TestActivate_SessionFactoryFailure(t *testing.T) {
	factory := SessionFactory(func(ctx context.Context) (Session, error) {
		return nil, errors.New("chrome executable not found")
	})
	w, err := NewWorkflow(fastConfig(), factory, zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec4", Email: "user@op.pl"})

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Contains(t, res.Detail, "session acquisition failed")
}

func TestActivate_MFAScreenIsDeferredMidFlow(t *testing.T) {
	s := fullFlowSession()
	s.setVisible(queryMFARemindLater, true)
	// login lands on the MFA enrollment page instead of the inbox
	loggedIn := false
	base := s.onClick
	s.onClick = func(f *fakeSession, query string) {
		if query == queryLoginButton && !loggedIn {
			loggedIn = true
			f.mu.Lock()
			f.location = "https://konto.onet.pl/mfa/setup"
			f.mu.Unlock()
			return
		}
		if query == queryMFARemindLater {
			f.mu.Lock()
			f.location = "https://poczta.onet.pl/"
			f.mu.Unlock()
			return
		}
		base(f, query)
	}
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec5", Email: "user@op.pl"})

	assert.Equal(t, OutcomeSuccess, res.Outcome, "detail: %s", res.Detail)
	assert.Equal(t, 1, s.clickCount(queryMFARemindLater))
}

func TestActivate_UndismissableMFAFailsTheAccount(t *testing.T) {
	s := fullFlowSession()
	s.clickErr[queryMFARemindLater] = errors.New("button missing")
	base := s.onClick
	s.onClick = func(f *fakeSession, query string) {
		if query == queryLoginButton {
			f.mu.Lock()
			f.location = "https://konto.onet.pl/mfa/setup"
			f.mu.Unlock()
			return
		}
		base(f, query)
	}
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec6", Email: "user@op.pl"})

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Contains(t, res.Detail, "could not be bypassed")
	assert.True(t, s.closed)
}

func TestActivate_ToggleConfirmationMissFailsTheAccount(t *testing.T) {
	s := fullFlowSession()
	base := s.onClick
	s.onClick = func(f *fakeSession, query string) {
		if query == queryPOP3Toggle {
			// click lands but the UI never reflects the change
			return
		}
		base(f, query)
	}
	w, err := NewWorkflow(fastConfig(), factoryFor(s), zap.NewNop())
	require.NoError(t, err)

	res := w.Activate(context.Background(), AccountRecord{Handle: "rec7", Email: "user@op.pl"})

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Contains(t, res.Detail, "POP3")
	require.Len(t, s.screenshots, 1)
}

func TestScreenshotPath_SanitizesSeparators(t *testing.T) {
	assert.Equal(t, "error_screenshot_user@op.pl.png", ScreenshotPath("user@op.pl"))
	assert.Equal(t, "error_screenshot_a_b.png", ScreenshotPath(`a/b`))
	assert.Equal(t, "error_screenshot_a_b.png", ScreenshotPath(`a\b`))
}

func TestNewWorkflow_NilDependencies(t *testing.T) {
	_, err := NewWorkflow(nil, factoryFor(newFakeSession()), zap.NewNop())
	assert.Error(t, err)
	_, err = NewWorkflow(fastConfig(), nil, zap.NewNop())
	assert.Error(t, err)
}
