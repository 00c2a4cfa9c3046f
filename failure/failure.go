// Package failure classifies errors returned by job callbacks into kinds
// that drive retry decisions.
//
// Classification prefers typed information: any error in the chain that
// exposes a Kind wins, followed by context deadlines and net errors. When
// nothing typed is found the error text is matched against a fixed list of
// case-insensitive markers, since remote services often surface failures
// only as strings.
package failure

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind categorises a failure.
type Kind string

const (
	RateLimit      Kind = "rate_limit"
	Network        Kind = "network"
	ServerError    Kind = "server_error"
	Authentication Kind = "authentication"
	QuotaExceeded  Kind = "quota_exceeded"
	ContentFilter  Kind = "content_filter"
	Unknown        Kind = "unknown"
)

// Kinds lists every kind in classification order.
var Kinds = []Kind{RateLimit, Network, ServerError, Authentication, QuotaExceeded, ContentFilter, Unknown}

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	Kind() Kind
}

type marker struct {
	kind    Kind
	needles []string
}

// Order matters: the first matching group wins.
var markers = []marker{
	{RateLimit, []string{"rate limit", "429"}},
	{Network, []string{"connection", "timeout", "dns"}},
	{ServerError, []string{"500", "501", "502", "503", "504"}},
	{Authentication, []string{"unauthorized", "401", "api key"}},
	{QuotaExceeded, []string{"quota", "billing"}},
	{ContentFilter, []string{"content_filter", "safety", "moderation"}},
}

// Classify returns the kind of err. A nil error is Unknown.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}
	// Covers *net.OpError and *net.DNSError.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage matches msg against the known markers.
func ClassifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, m := range markers {
		for _, n := range m.needles {
			if strings.Contains(msg, n) {
				return m.kind
			}
		}
	}
	return Unknown
}

// Retryable reports whether a failure of kind k may succeed on retry.
func Retryable(k Kind) bool {
	switch k {
	case Authentication, QuotaExceeded, ContentFilter:
		return false
	default:
		return true
	}
}

// Error is an error tagged with a Kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap tags err with kind. Wrap returns nil when err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

// Kind implements Kinded.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	switch {
	case e.err != nil && e.msg != "":
		return e.msg + ": " + e.err.Error()
	case e.err != nil:
		return e.err.Error()
	default:
		return e.msg
	}
}

func (e *Error) Unwrap() error { return e.err }
