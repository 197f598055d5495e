// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/browser/stealth"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// Manager creates and tracks browser sessions. Every session gets its own
// Chrome process with a fresh profile; the manager only guarantees that all
// of them are gone before Shutdown returns.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

const shutdownGracePeriod = 15 * time.Second

// NewManager creates a new browser manager.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// allocatorOptions builds the Chrome launch options for one session.
func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// Arguments necessary for stability, especially in containers.
	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Browser.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight),
	)
	for _, arg := range m.cfg.Browser.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// NewSession launches an isolated browsing context configured with a rotated
// persona and stealth patches applied before any navigation.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	persona := stealth.NewPersona(
		m.cfg.Browser.ViewportWidth,
		m.cfg.Browser.ViewportHeight,
		m.cfg.Browser.Locale,
		m.cfg.Browser.Timezone,
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	session := newSession(browserCtx, cancel, m.cfg, persona, m.logger, nil)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	if err := session.initialize(ctx); err != nil {
		// Use a background context for cleanup as ctx might be the cause of failure.
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		session.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New browser session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes all remaining sessions and waits for their resources to be
// released.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.RLock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.RUnlock()

	for _, s := range sessionsToClose {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	graceCtx, graceCancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer graceCancel()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
		return nil
	case <-graceCtx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(graceCtx.Err()))
		return fmt.Errorf("browser manager shutdown timed out: %w", graceCtx.Err())
	}
}
