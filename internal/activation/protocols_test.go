package activation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestToggler(t *testing.T) *Toggler {
	t.Helper()
	toggler, err := NewToggler(fastActivationConfig(), zap.NewNop())
	require.NoError(t, err)
	return toggler
}

// settingsReadySession scripts a session already sitting on the inbox, with
// the settings page one menu hop away.
func settingsReadySession() *fakeSession {
	s := newFakeSession()
	s.setVisible(queryComposePL, true)
	s.setVisible(queryMenuButton, true)
	s.setVisible(querySettingsLink, true)
	s.location = "https://poczta.onet.pl/"
	s.onClick = func(f *fakeSession, query string) {
		if query == querySettingsLink {
			f.mu.Lock()
			f.location = "https://ustawienia.poczta.onet.pl/konto-glowne"
			f.visible[queryPOP3Toggle] = true
			f.mu.Unlock()
		}
	}
	return s
}

func TestNewToggler_RejectsBadPattern(t *testing.T) {
	cfg := fastActivationConfig()
	cfg.SettingsURLPattern = "ustawienia[("
	_, err := NewToggler(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNavigateToSettings_HappyPath(t *testing.T) {
	s := settingsReadySession()
	toggler := newTestToggler(t)

	require.NoError(t, toggler.NavigateToSettings(context.Background(), s))
	assert.Equal(t, []string{queryMenuButton, querySettingsLink}, s.clicks)
}

func TestNavigateToSettings_EnglishComposeVariantSuffices(t *testing.T) {
	s := settingsReadySession()
	s.setVisible(queryComposePL, false)
	s.setVisible(queryComposeEN, true)
	toggler := newTestToggler(t)

	require.NoError(t, toggler.NavigateToSettings(context.Background(), s))
}

func TestNavigateToSettings_InboxNeverLoads(t *testing.T) {
	s := newFakeSession()
	toggler := newTestToggler(t)

	err := toggler.NavigateToSettings(context.Background(), s)

	var nav *NavigationError
	require.True(t, errors.As(err, &nav))
	assert.Contains(t, nav.Expected, "inbox")
}

func TestNavigateToSettings_WrongURLAfterSettingsClick(t *testing.T) {
	s := settingsReadySession()
	s.onClick = nil // location never changes off the inbox
	toggler := newTestToggler(t)

	err := toggler.NavigateToSettings(context.Background(), s)

	var nav *NavigationError
	require.True(t, errors.As(err, &nav))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNavigateToSettings_TabFallbackRevealsToggles(t *testing.T) {
	s := settingsReadySession()
	s.setVisible(queryMainAccountTab, true)
	s.onClick = func(f *fakeSession, query string) {
		switch query {
		case querySettingsLink:
			f.mu.Lock()
			f.location = "https://ustawienia.poczta.onet.pl/"
			f.mu.Unlock()
		case queryMainAccountTab:
			f.setVisible(queryPOP3Toggle, true)
		}
	}
	toggler := newTestToggler(t)

	require.NoError(t, toggler.NavigateToSettings(context.Background(), s))
	assert.Equal(t, 1, s.clickCount(queryMainAccountTab))
}

func TestNavigateToSettings_SecondRevealMissIsFatal(t *testing.T) {
	s := settingsReadySession()
	s.setVisible(queryMainAccountTab, true)
	s.onClick = func(f *fakeSession, query string) {
		if query == querySettingsLink {
			f.mu.Lock()
			f.location = "https://ustawienia.poczta.onet.pl/"
			f.mu.Unlock()
		}
		// the tab click reveals nothing
	}
	toggler := newTestToggler(t)

	err := toggler.NavigateToSettings(context.Background(), s)

	var nav *NavigationError
	require.True(t, errors.As(err, &nav))
	assert.Equal(t, "protocol toggles", nav.Expected)
}

func TestEnsureEnabled_DisabledToggleIsClickedAndConfirmed(t *testing.T) {
	s := newFakeSession()
	s.setText(queryPOP3Toggle, "POP3 Wyłączony")
	s.onClick = func(f *fakeSession, query string) {
		if query == queryPOP3Toggle {
			f.setText(queryPOP3Toggle, "POP3 Włączony")
			f.setVisible(queryPOP3Enabled, true)
		}
	}
	toggler := newTestToggler(t)

	state, err := toggler.EnsureEnabled(context.Background(), s, POP3)

	require.NoError(t, err)
	assert.Equal(t, EnabledNow, state)
	assert.Equal(t, 1, s.clickCount(queryPOP3Toggle))
}

func TestEnsureEnabled_IsIdempotent(t *testing.T) {
	s := newFakeSession()
	s.setText(queryIMAPToggle, "IMAP Wyłączony")
	s.onClick = func(f *fakeSession, query string) {
		if query == queryIMAPToggle {
			f.setText(queryIMAPToggle, "IMAP Włączony")
			f.setVisible(queryIMAPEnabled, true)
		}
	}
	toggler := newTestToggler(t)

	state, err := toggler.EnsureEnabled(context.Background(), s, IMAP)
	require.NoError(t, err)
	require.Equal(t, EnabledNow, state)

	// Second pass must observe the enabled state and not click again.
	state, err = toggler.EnsureEnabled(context.Background(), s, IMAP)
	require.NoError(t, err)
	assert.Equal(t, AlreadyEnabled, state)
	assert.Equal(t, 1, s.clickCount(queryIMAPToggle))
}

func TestEnsureEnabled_AlreadyEnabledNeverClicks(t *testing.T) {
	s := newFakeSession()
	s.setText(queryPOP3Toggle, "POP3 Włączony")
	toggler := newTestToggler(t)

	state, err := toggler.EnsureEnabled(context.Background(), s, POP3)

	require.NoError(t, err)
	assert.Equal(t, AlreadyEnabled, state)
	assert.Empty(t, s.clicks)
}

func TestEnsureEnabled_MissingConfirmationIsAnError(t *testing.T) {
	s := newFakeSession()
	s.setText(queryPOP3Toggle, "POP3 Wyłączony")
	// click succeeds but the UI never shows the enabled label
	toggler := newTestToggler(t)

	_, err := toggler.EnsureEnabled(context.Background(), s, POP3)

	var toggle *ToggleError
	require.True(t, errors.As(err, &toggle))
	assert.Equal(t, "POP3", toggle.Protocol)
	assert.Contains(t, err.Error(), "never confirmed")
}

func TestEnsureEnabled_ToggleNeverVisible(t *testing.T) {
	s := newFakeSession()
	toggler := newTestToggler(t)

	_, err := toggler.EnsureEnabled(context.Background(), s, IMAP)

	var toggle *ToggleError
	require.True(t, errors.As(err, &toggle))
	assert.Equal(t, "IMAP", toggle.Protocol)
}
