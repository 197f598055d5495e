package activation

import (
	"context"

	"go.uber.org/zap"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

// Sequencer drives the mandatory credential-entry flow. Unlike the optional
// screens, every element here is required: any timeout is fatal for the
// account.
type Sequencer struct {
	cfg    config.ActivationConfig
	logger *zap.Logger
}

// NewSequencer creates a login sequencer.
func NewSequencer(cfg config.ActivationConfig, logger *zap.Logger) *Sequencer {
	return &Sequencer{cfg: cfg, logger: logger.Named("login")}
}

// Login enters the credentials and submits. The email field gets the long
// mandatory wait; the remaining steps use the same budget since the form is
// already rendered once the first field appeared.
func (q *Sequencer) Login(ctx context.Context, s Session, account AccountRecord) error {
	log := q.logger.With(zap.String("email", account.Email))
	log.Info("Performing login.")

	wait := q.cfg.MandatoryFieldWait

	if err := s.WaitVisible(ctx, queryEmailInput, wait); err != nil {
		return &MandatoryElementError{Query: queryEmailInput, Err: err}
	}
	if err := s.Fill(ctx, queryEmailInput, account.Email, wait); err != nil {
		return &MandatoryElementError{Query: queryEmailInput, Err: err}
	}
	if err := s.Click(ctx, queryNextButton, wait); err != nil {
		return &MandatoryElementError{Query: queryNextButton, Err: err}
	}
	if err := s.Fill(ctx, queryPasswordInput, account.Password, wait); err != nil {
		return &MandatoryElementError{Query: queryPasswordInput, Err: err}
	}
	if err := s.Click(ctx, queryLoginButton, wait); err != nil {
		return &MandatoryElementError{Query: queryLoginButton, Err: err}
	}

	log.Debug("Credentials submitted.")
	return nil
}
