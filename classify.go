package instactl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
	opAuth
)

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// classify maps a goinsta failure onto the error taxonomy. goinsta reports
// most API failures as plain messages, so matching is done on text.
func classify(op string, kind opKind, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		containsAny(msg, "timeout", "connection reset", "connection refused", "unexpected eof", "no such host"):
		return &TransientError{Op: op, Err: err}
	case containsAny(msg, "please wait a few minutes", "rate limit", "too many requests", "try it later", "temporarily unavailable"):
		return &TransientError{Op: op, Err: err}
	case containsAny(msg, "two_factor_required", "two-factor", "two factor"):
		return &AuthError{Op: op, Err: fmt.Errorf("%w: %v", ErrTwoFactorRequired, err)}
	case containsAny(msg, "login_required", "login required", "challenge_required", "checkpoint_required"):
		return &AuthError{Op: op, Err: fmt.Errorf("%w: %v", ErrSessionInvalid, err)}
	case containsAny(msg, "bad_password", "invalid_user", "password you entered", "username you entered", "invalid credentials"):
		return &AuthError{Op: op, Err: err}
	case containsAny(msg, "user not found", "not found", "no user", "does not exist"):
		return &NotFoundError{Kind: "resource", Name: op, Err: err}
	}

	switch kind {
	case opAuth:
		return &AuthError{Op: op, Err: err}
	case opWrite:
		return &UploadError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
