package instactl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		kind  opKind
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "net timeout",
			kind: opWrite,
			err:  timeoutErr{},
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name: "unexpected eof",
			kind: opRead,
			err:  fmt.Errorf("read body: %w", io.ErrUnexpectedEOF),
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name: "rate limited",
			kind: opWrite,
			err:  errors.New("Please wait a few minutes before you try again."),
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name: "two factor",
			kind: opAuth,
			err:  errors.New("two_factor_required"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTwoFactorRequired)
				assert.Equal(t, ExitAuth, ExitCode(err))
			},
		},
		{
			name: "login required on a write",
			kind: opWrite,
			err:  errors.New("login_required"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrSessionInvalid)
				var ae *AuthError
				assert.True(t, errors.As(err, &ae))
			},
		},
		{
			name: "bad password",
			kind: opAuth,
			err:  errors.New("bad_password: The password you entered is incorrect."),
			check: func(t *testing.T, err error) {
				var ae *AuthError
				require.True(t, errors.As(err, &ae))
				assert.NotErrorIs(t, err, ErrSessionInvalid)
				assert.False(t, IsTransient(err))
			},
		},
		{
			name: "user not found",
			kind: opRead,
			err:  errors.New("User not found"),
			check: func(t *testing.T, err error) {
				assert.True(t, isNotFound(err))
			},
		},
		{
			name: "unknown auth failure",
			kind: opAuth,
			err:  errors.New("something odd"),
			check: func(t *testing.T, err error) {
				var ae *AuthError
				assert.True(t, errors.As(err, &ae))
			},
		},
		{
			name: "unknown write failure",
			kind: opWrite,
			err:  errors.New("media rejected"),
			check: func(t *testing.T, err error) {
				var ue *UploadError
				assert.True(t, errors.As(err, &ue))
				assert.Equal(t, ExitUpload, ExitCode(err))
			},
		},
		{
			name: "unknown read failure",
			kind: opRead,
			err:  errors.New("weird"),
			check: func(t *testing.T, err error) {
				assert.Equal(t, ExitFailure, ExitCode(err))
			},
		},
		{
			name: "cancelled",
			kind: opWrite,
			err:  context.Canceled,
			check: func(t *testing.T, err error) {
				assert.Same(t, context.Canceled, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, classify("op", tt.kind, tt.err))
		})
	}

	assert.NoError(t, classify("op", opWrite, nil))
}
