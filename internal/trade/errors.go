package trade

import (
	"errors"
	"strings"
)

// Pipeline error taxonomy. Stages 1-3 fail without side effects; stage 4
// distinguishes venue failures (rolled back) from persistence failures
// (reported as a reconciliation concern).
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrVenueExecution      = errors.New("venue execution failure")
	ErrPersistence         = errors.New("persistence failure")
)

// Validation error codes, accumulated rather than short-circuited.
const (
	CodeSymbolUnavailable   = "SYMBOL_UNAVAILABLE"
	CodePriceUnavailable    = "PRICE_UNAVAILABLE"
	CodeBotConstraint       = "BOT_CONSTRAINT_VIOLATION"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeBalanceUnavailable  = "BALANCE_UNAVAILABLE"
)

// FieldError is one violated constraint from a validation pass.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field != "" {
		return e.Code + " (" + e.Field + "): " + e.Message
	}
	return e.Code + ": " + e.Message
}

// ValidationErrors collects every violated constraint so the caller can
// report all actionable issues at once.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}
