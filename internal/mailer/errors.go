package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// MailError classifies delivery failures. Transient faults drive the retry
// planner; bounces are permanent regardless of remaining retry budget, since
// they indicate an invalid address rather than a transient fault.
type MailError struct {
	Code      string
	Message   string
	Transient bool
	Bounce    bool
	Cause     error
}

func (e *MailError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "mail error")

	if code := strings.TrimSpace(e.Code); code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", code))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *MailError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var mailErr *MailError
	if errors.As(err, &mailErr) {
		return mailErr.Transient && !mailErr.Bounce
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsBounce reports whether an error is a permanent address failure.
func IsBounce(err error) bool {
	if err == nil {
		return false
	}

	var mailErr *MailError
	if errors.As(err, &mailErr) {
		return mailErr.Bounce
	}

	return false
}
