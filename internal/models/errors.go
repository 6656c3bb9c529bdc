package models

import "errors"

// ErrAPI matches any LLMError of kind KindAPI via errors.Is.
var ErrAPI = errors.New("api error")

// ErrParse matches any LLMError of kind KindParse via errors.Is.
var ErrParse = errors.New("parse error")

// ErrorKind tags the LLMError union.
type ErrorKind int

const (
	// KindAPI means the upstream rejected or failed the call, or it never reached it.
	KindAPI ErrorKind = iota + 1
	// KindParse means a payload or lookup did not match the expected schema.
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindAPI:
		return "api_error"
	case KindParse:
		return "parse_error"
	default:
		return "unknown_error"
	}
}

// LLMError is the only error type crossing the provider boundary.
// Status is the upstream HTTP status when one was received, 0 otherwise.
type LLMError struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

// NewAPIError builds an ApiError with the given message.
func NewAPIError(message string) *LLMError {
	return &LLMError{Kind: KindAPI, Message: message}
}

// NewParseError builds a ParseError with the given message.
func NewParseError(message string) *LLMError {
	return &LLMError{Kind: KindParse, Message: message}
}

func (e *LLMError) Error() string {
	return e.Message
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *LLMError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return e.Kind == KindAPI
	case ErrParse:
		return e.Kind == KindParse
	}
	return false
}

// AsLLMError extracts an *LLMError from the chain.
func AsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}
