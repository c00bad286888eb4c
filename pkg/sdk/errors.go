package searchgate

import "github.com/kailas-cloud/searchgate/internal/domain/fault"

// Error is a classified search failure. Every error returned by Client.Search is an *Error.
type Error = fault.Error

// Category is the failure category of an Error.
type Category = fault.Category

// Failure categories.
const (
	CategoryAuth       = fault.Auth
	CategoryRateLimit  = fault.RateLimit
	CategoryTimeout    = fault.Timeout
	CategoryUpstream   = fault.Upstream
	CategoryValidation = fault.Validation
)

// Sentinel errors, one per category. Use errors.Is() to check.
var (
	ErrAuth       = fault.ErrAuth
	ErrRateLimit  = fault.ErrRateLimit
	ErrTimeout    = fault.ErrTimeout
	ErrUpstream   = fault.ErrUpstream
	ErrValidation = fault.ErrValidation
)
