package activation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// fakeSession is a scripted stand-in for a live browser session. Visibility,
// text content, and the location are plain maps the test mutates; a click
// hook lets a test simulate page reactions like a toggle flipping its label.
type fakeSession struct {
	mu       sync.Mutex
	visible  map[string]bool
	texts    map[string]string
	location string

	navigated   []string
	clicks      []string
	fills       map[string]string
	screenshots []string
	closed      bool

	navErr        error
	locationErr   error
	clickErr      map[string]error
	screenshotErr error

	// onClick runs after a successful click, letting the script mutate the
	// fake page state the way the real UI would.
	onClick func(f *fakeSession, query string)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		visible:  make(map[string]bool),
		texts:    make(map[string]string),
		fills:    make(map[string]string),
		clickErr: make(map[string]error),
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	if f.navErr != nil {
		return f.navErr
	}
	f.location = url
	return nil
}

func (f *fakeSession) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locationErr != nil {
		return "", f.locationErr
	}
	return f.location, nil
}

// WaitVisible consumes the full timeout when the element is absent, the way
// a real wait would.
func (f *fakeSession) WaitVisible(ctx context.Context, query string, timeout time.Duration) error {
	f.mu.Lock()
	ok := f.visible[query]
	f.mu.Unlock()
	if ok {
		return nil
	}
	select {
	case <-time.After(timeout):
		return fmt.Errorf("wait for %q timed out after %s: %w", query, timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSession) Click(ctx context.Context, query string, timeout time.Duration) error {
	f.mu.Lock()
	if err := f.clickErr[query]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.clicks = append(f.clicks, query)
	hook := f.onClick
	f.mu.Unlock()
	if hook != nil {
		hook(f, query)
	}
	return nil
}

func (f *fakeSession) Fill(ctx context.Context, query, text string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible[query] {
		return fmt.Errorf("fill of %q timed out after %s: %w", query, timeout, context.DeadlineExceeded)
	}
	f.fills[query] = text
	return nil
}

func (f *fakeSession) Text(ctx context.Context, query string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[query]
	if !ok {
		return "", fmt.Errorf("text of %q timed out after %s: %w", query, timeout, context.DeadlineExceeded)
	}
	return text, nil
}

func (f *fakeSession) Screenshot(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots = append(f.screenshots, path)
	return f.screenshotErr
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) setVisible(query string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible[query] = v
}

func (f *fakeSession) setText(query, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[query] = text
}

func (f *fakeSession) clickCount(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == query {
			n++
		}
	}
	return n
}

// fastActivationConfig shrinks every wait budget so absent-element paths
// resolve in milliseconds.
func fastActivationConfig() config.ActivationConfig {
	cfg := config.NewDefaultConfig().Activation
	cfg.CookieBannerWait = 40 * time.Millisecond
	cfg.MandatoryFieldWait = 40 * time.Millisecond
	cfg.MFADismissWait = 40 * time.Millisecond
	cfg.SkipScreenWait = 40 * time.Millisecond
	cfg.NextScreenWait = 40 * time.Millisecond
	cfg.InboxWait = 40 * time.Millisecond
	cfg.MenuWait = 40 * time.Millisecond
	cfg.SettingsURLWait = 40 * time.Millisecond
	cfg.ToggleProbeWait = 20 * time.Millisecond
	cfg.ToggleVisibleWait = 40 * time.Millisecond
	cfg.ToggleConfirmWait = 40 * time.Millisecond
	cfg.ToggleSettleWait = 0
	return cfg
}
