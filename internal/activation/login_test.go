package activation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loginReadySession() *fakeSession {
	s := newFakeSession()
	s.setVisible(queryEmailInput, true)
	s.setVisible(queryNextButton, true)
	s.setVisible(queryPasswordInput, true)
	s.setVisible(queryLoginButton, true)
	return s
}

func TestLogin_SubmitsCredentialsInOrder(t *testing.T) {
	s := loginReadySession()
	seq := NewSequencer(fastActivationConfig(), zap.NewNop())

	account := AccountRecord{Handle: "rec1", Email: "user@op.pl", Password: "s3cret"}
	require.NoError(t, seq.Login(context.Background(), s, account))

	assert.Equal(t, "user@op.pl", s.fills[queryEmailInput])
	assert.Equal(t, "s3cret", s.fills[queryPasswordInput])
	assert.Equal(t, []string{queryNextButton, queryLoginButton}, s.clicks)
}

func TestLogin_MissingEmailFieldIsFatal(t *testing.T) {
	s := newFakeSession() // nothing visible
	seq := NewSequencer(fastActivationConfig(), zap.NewNop())

	err := seq.Login(context.Background(), s, AccountRecord{Email: "user@op.pl"})

	require.Error(t, err)
	var mandatory *MandatoryElementError
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, errors.As(err, &mandatory))
	assert.Equal(t, queryEmailInput, mandatory.Query)
	assert.Empty(t, s.fills, "no credential should be typed before the field exists")
}

func TestLogin_PasswordStepFailureIsFatal(t *testing.T) {
	s := loginReadySession()
	s.setVisible(queryPasswordInput, false)
	seq := NewSequencer(fastActivationConfig(), zap.NewNop())

	err := seq.Login(context.Background(), s, AccountRecord{Email: "user@op.pl", Password: "pw"})

	var mandatory *MandatoryElementError
	require.True(t, errors.As(err, &mandatory))
	assert.Equal(t, queryPasswordInput, mandatory.Query)
}
