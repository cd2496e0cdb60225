package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Pipeline error codes.
const (
	ErrCodeAuthentication  = "pipeline.authentication"   // No valid session for the request
	ErrCodePolicyViolation = "pipeline.policy_violation" // Context policy rejected the request
	ErrCodeTrustError      = "pipeline.trust_error"      // Trust evaluation failed (fail-open)
	ErrCodeDecryption      = "privacy.decryption"        // Field decryption failed
	ErrCodeBudgetExceeded  = "privacy.budget_exceeded"   // Privacy budget ceiling crossed
)

// httpStatusMap maps error codes to HTTP status codes.
var httpStatusMap = map[string]int{
	ErrCodeAuthentication:  http.StatusUnauthorized,        // 401
	ErrCodePolicyViolation: http.StatusForbidden,           // 403
	ErrCodeTrustError:      http.StatusInternalServerError, // 500 (surfaced only in logs; request fails open)
	ErrCodeDecryption:      http.StatusInternalServerError, // 500
	ErrCodeBudgetExceeded:  http.StatusTooManyRequests,     // 429
}

// Error represents a pipeline rejection with a structured code.
type Error struct {
	Code    string // One of the ErrCode* constants
	Message string // Human-readable error description
	Status  int    // HTTP status code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// newError creates an Error with the appropriate HTTP status.
func newError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  httpStatusMap[code],
	}
}

// ErrAuthentication creates an error for requests without a valid session.
func ErrAuthentication(reason string) *Error {
	return newError(ErrCodeAuthentication, reason)
}

// ErrPolicyViolation creates an error for context policy rejections. The
// message always carries a "context:" marker so callers and audit trails can
// distinguish policy denials from trust denials.
func ErrPolicyViolation(reason string) *Error {
	return newError(ErrCodePolicyViolation, "context: "+reason)
}

// ErrDecryption creates an error for field decryption failures.
func ErrDecryption(detail string) *Error {
	return newError(ErrCodeDecryption, detail)
}

// ErrBudgetExceeded creates an error for a tripped privacy budget.
func ErrBudgetExceeded() *Error {
	return newError(ErrCodeBudgetExceeded, "privacy budget exceeded; reset required before further noised exports")
}

// ErrorCode extracts the pipeline error code from an error.
// Returns empty string if the error is not a pipeline Error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Code
	}
	return ""
}

// IsPipelineError returns true if the error is or wraps a pipeline Error.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	var pErr *Error
	return errors.As(err, &pErr)
}
