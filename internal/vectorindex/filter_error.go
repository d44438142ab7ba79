package vectorindex

import "fmt"

type FilterErrorCode string

const (
	FilterErrorValidation       FilterErrorCode = "validation_failed"
	FilterErrorUnsupported      FilterErrorCode = "unsupported_filter"
	FilterErrorUnknownAttribute FilterErrorCode = "unknown_attribute"
)

// FilterError reports why a structured filter could not be accepted.
type FilterError struct {
	Code    FilterErrorCode
	Message string
	Cause   error
}

func (e *FilterError) Error() string {
	if e == nil {
		return "invalid filter"
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid filter (code=%s): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid filter (code=%s): %s", e.Code, e.Message)
}

func (e *FilterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func filterErr(code FilterErrorCode, message string, cause error) error {
	return &FilterError{Code: code, Message: message, Cause: cause}
}
