// Package fault is the shared failure vocabulary of the gateway. Every error that
// reaches a caller is normalized into one of five categories with a message that
// never carries upstream credentials.
package fault

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Category is the closed set of failure categories.
type Category string

const (
	// Auth means the upstream rejected the gateway credential.
	Auth Category = "auth"
	// RateLimit means the upstream throttled the request.
	RateLimit Category = "rate_limit"
	// Timeout means an attempt exceeded its deadline.
	Timeout Category = "timeout"
	// Upstream is any other upstream or network fault.
	Upstream Category = "upstream_error"
	// Validation means the caller input was malformed.
	Validation Category = "validation"
)

// Categories lists every valid category.
var Categories = []Category{Auth, RateLimit, Timeout, Upstream, Validation}

// Per-category sentinels; *Error unwraps to the one matching its category.
var (
	ErrAuth       = errors.New("auth")
	ErrRateLimit  = errors.New("rate limited")
	ErrTimeout    = errors.New("timeout")
	ErrUpstream   = errors.New("upstream error")
	ErrValidation = errors.New("validation")
)

// UnknownMessage is used when no recognizable fault is available.
const UnknownMessage = "unknown upstream error"

// IsValid reports whether c belongs to the closed set.
func (c Category) IsValid() bool {
	switch c {
	case Auth, RateLimit, Timeout, Upstream, Validation:
		return true
	}
	return false
}

func (c Category) sentinel() error {
	switch c {
	case Auth:
		return ErrAuth
	case RateLimit:
		return ErrRateLimit
	case Timeout:
		return ErrTimeout
	case Validation:
		return ErrValidation
	default:
		return ErrUpstream
	}
}

// Error is a classified fault.
type Error struct {
	Category   Category
	Message    string
	StatusCode int // upstream HTTP status, 0 when not applicable
}

// New creates a classified fault without a status code.
func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

// Newf creates a classified fault with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return New(category, fmt.Sprintf(format, args...))
}

// WithStatus creates a classified fault carrying the upstream status code.
func WithStatus(category Category, status int, message string) *Error {
	return &Error{Category: category, Message: message, StatusCode: status}
}

func (e *Error) Error() string {
	return string(e.Category) + ": " + e.Message
}

// Unwrap exposes the category sentinel for errors.Is.
func (e *Error) Unwrap() error { return e.Category.sentinel() }

// Classify maps any error onto the taxonomy. A classified fault keeps its category;
// any other error becomes Upstream; nil becomes Upstream with UnknownMessage.
// Occurrences of secrets and credential-looking header values are masked.
func Classify(err error, secrets ...string) *Error {
	if err == nil {
		return New(Upstream, UnknownMessage)
	}

	var fe *Error
	if errors.As(err, &fe) && fe != nil && fe.Category.IsValid() {
		return &Error{
			Category:   fe.Category,
			Message:    Redact(fe.Message, secrets...),
			StatusCode: fe.StatusCode,
		}
	}

	msg := Redact(err.Error(), secrets...)
	if strings.TrimSpace(msg) == "" {
		msg = UnknownMessage
	}
	return New(Upstream, msg)
}

// CategoryOf returns the category of err, Upstream when err is not classified.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) && fe != nil && fe.Category.IsValid() {
		return fe.Category
	}
	return Upstream
}

const redacted = "[REDACTED]"

var credentialPattern = regexp.MustCompile(`(?i)\b(bearer|token|basic)\s+[A-Za-z0-9._~+/=-]+`)

// Redact masks every non-empty secret and any "Bearer/Token/Basic <value>" pair.
func Redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, redacted)
		}
	}
	return credentialPattern.ReplaceAllString(msg, "$1 "+redacted)
}
