package util

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies an upstream failure. Codes are logged, never returned
// to the relay's caller.
type ErrorCode string

const (
	CodeRequestBuild   ErrorCode = "request_build"
	CodeTransport      ErrorCode = "transport"
	CodeUpstreamStatus ErrorCode = "upstream_status"
	CodeReadBody       ErrorCode = "read_body"
	CodeDecode         ErrorCode = "decode"
	CodeNoChoices      ErrorCode = "no_choices"
	CodeUnknown        ErrorCode = "unknown"
)

// UpstreamError wraps a failed provider call with its classification
type UpstreamError struct {
	Backend string
	Code    ErrorCode
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Backend, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Code, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Cause() error { return e.Err }

func newUpstreamError(backend string, code ErrorCode, status int, err error) *UpstreamError {
	return &UpstreamError{Backend: backend, Code: code, Status: status, Err: err}
}

// CodeOf extracts the classification from anywhere in err's chain
func CodeOf(err error) ErrorCode {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return CodeUnknown
}
