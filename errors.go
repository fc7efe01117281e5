package instactl

import (
	"errors"
	"fmt"
)

var (
	// ErrTwoFactorRequired is returned by Client.Login when the account asks for a one-time code.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrSessionInvalid means the remote side no longer accepts the restored session.
	ErrSessionInvalid = errors.New("session is no longer valid")
	// ErrNotLoggedIn is returned when an action needs a session and none is persisted.
	ErrNotLoggedIn = errors.New("not logged in, run the login command first")
	// ErrNoSession is returned by a SessionStore that holds nothing.
	ErrNoSession = errors.New("no persisted session")
	// ErrUnsupported marks capabilities the wrapped client library does not offer.
	ErrUnsupported = errors.New("not supported by the client library")
)

// AuthError covers bad credentials, rejected one-time codes and dead sessions.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// MediaError reports a local media file that cannot be posted.
type MediaError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("media %q: %s", e.Path, e.Reason)
}

func (e *MediaError) Unwrap() error { return e.Err }

// UploadError is a remote rejection of content or of an engagement action.
type UploadError struct {
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// NotFoundError is returned when a username or media id does not resolve.
type NotFoundError struct {
	Kind string
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "user"
	}
	return fmt.Sprintf("%s %q not found", kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TransientError wraps network, timeout and rate-limit failures. It is the
// only class the Retrier retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporary failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Process exit codes, one per error class.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitAuth      = 2
	ExitMedia     = 3
	ExitUpload    = 4
	ExitNotFound  = 5
	ExitTransient = 6
	ExitUsage     = 64
)

// ExitCode maps an error returned by the Runner to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		authErr      *AuthError
		mediaErr     *MediaError
		uploadErr    *UploadError
		notFoundErr  *NotFoundError
		transientErr *TransientError
	)
	switch {
	case errors.As(err, &authErr), errors.Is(err, ErrNotLoggedIn):
		return ExitAuth
	case errors.As(err, &mediaErr):
		return ExitMedia
	case errors.As(err, &notFoundErr):
		return ExitNotFound
	case errors.As(err, &uploadErr):
		return ExitUpload
	case errors.As(err, &transientErr):
		return ExitTransient
	}
	return ExitFailure
}
