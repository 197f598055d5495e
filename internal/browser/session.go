// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/browser/stealth"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// Session represents an isolated browsing context for one account attempt.
// Each session owns its own Chrome process with a fresh profile, so cookies
// and storage never leak between accounts.
type Session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	cfg     *config.Config
	persona stealth.Persona
	typist  *typist

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// newSession wraps an initialized chromedp context. Callers go through
// Manager.NewSession.
func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	persona stealth.Persona,
	logger *zap.Logger,
	onClose func(),
) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		persona: persona,
		typist:  newTypist(),
		onClose: onClose,
	}
}

// initialize connects to the browser target and applies the stealth persona.
func (s *Session) initialize(ctx context.Context) error {
	// Ensure the target (tab) is created and CDP is connected.
	if err := chromedp.Run(s.ctx); err != nil {
		return fmt.Errorf("failed to initialize browser context/target connection: %w", err)
	}

	if err := s.runActions(ctx, stealth.Apply(s.persona, s.logger)); err != nil {
		return fmt.Errorf("failed to apply stealth persona: %w", err)
	}
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads the URL and waits for the document to become ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", url))

	navTimeout := s.cfg.Activation.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, navCtx.Err())
		}
		if opCtx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", opCtx.Err())
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Location returns the browser's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	locCtx, locCancel := context.WithTimeout(opCtx, 10*time.Second)
	defer locCancel()

	var url string
	if err := chromedp.Run(locCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read browser location: %w", err)
	}
	return url, nil
}

// WaitVisible blocks until the element matching the query is visible, or the
// timeout elapses. A deadline error wraps context.DeadlineExceeded so callers
// can distinguish "not there yet" from hard failures.
func (s *Session) WaitVisible(ctx context.Context, query string, timeout time.Duration) error {
	return s.runBounded(ctx, timeout, fmt.Sprintf("wait for '%s'", query),
		chromedp.WaitVisible(query, queryOption(query)),
	)
}

// Click waits for the element to become visible, scrolls it into view, and
// clicks it.
func (s *Session) Click(ctx context.Context, query string, timeout time.Duration) error {
	s.logger.Debug("Clicking element", zap.String("query", query))
	return s.runBounded(ctx, timeout, fmt.Sprintf("click '%s'", query),
		chromedp.WaitVisible(query, queryOption(query)),
		chromedp.ScrollIntoView(query, queryOption(query)),
		chromedp.Click(query, queryOption(query)),
	)
}

// Fill waits for the input, clears any existing value, and types the text at
// a human pace.
func (s *Session) Fill(ctx context.Context, query, text string, timeout time.Duration) error {
	s.logger.Debug("Filling element", zap.String("query", query), zap.Int("text_length", len(text)))
	return s.runBounded(ctx, timeout, fmt.Sprintf("fill '%s'", query),
		chromedp.WaitVisible(query, queryOption(query)),
		chromedp.Click(query, queryOption(query)),
		chromedp.Clear(query, queryOption(query)),
		s.typist.typeText(query, text, queryOption(query)),
	)
}

// Text waits for the element and returns its rendered text content.
func (s *Session) Text(ctx context.Context, query string, timeout time.Duration) (string, error) {
	var text string
	err := s.runBounded(ctx, timeout, fmt.Sprintf("read text of '%s'", query),
		chromedp.WaitVisible(query, queryOption(query)),
		chromedp.Text(query, &text, queryOption(query)),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Screenshot captures the current viewport and writes it to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	shotCtx, shotCancel := context.WithTimeout(opCtx, 15*time.Second)
	defer shotCancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot to %s: %w", path, err)
	}
	s.logger.Info("Saved diagnostic screenshot.", zap.String("path", path))
	return nil
}

// Close terminates the browser session and releases its resources. Safe to
// call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// runBounded executes chromedp actions under both the session lifetime and a
// per-operation timeout.
func (s *Session) runBounded(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	actCtx, actCancel := context.WithTimeout(opCtx, timeout)
	defer actCancel()

	if err := chromedp.Run(actCtx, actions...); err != nil {
		if actCtx.Err() == context.DeadlineExceeded && opCtx.Err() == nil {
			return fmt.Errorf("%s timed out after %s: %w", what, timeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// runActions executes chromedp actions respecting both the session lifetime
// and the incoming request context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// queryOption picks the chromedp matcher for a query string: XPath
// expressions are routed through the DOM search backend, everything else is
// treated as a CSS selector.
func queryOption(query string) chromedp.QueryOption {
	if strings.HasPrefix(query, "/") || strings.HasPrefix(query, "(") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
