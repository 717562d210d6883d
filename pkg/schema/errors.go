package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse       = "PARSE_ERROR"
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeUnsupported = "UNSUPPORTED_FORMAT"
	ErrCodeFetch       = "FETCH_ERROR"
	ErrCodeDecode      = "DECODE_ERROR"
	ErrCodeRender      = "RENDER_ERROR"
	ErrCodeUpstream    = "UPSTREAM_ERROR"
	ErrCodePolicy      = "POLICY_DENIED"
	ErrCodeSave        = "SAVE_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeStore       = "STORE_ERROR"
	ErrCodeTimeout     = "TIMEOUT_ERROR"
	ErrCodeCancelled   = "CANCELLED"
)

// UMLError is the structured error type for all umlview operations.
type UMLError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Path    string         `json:"path,omitempty"`
	Cause   error          `json:"-"`
}

func (e *UMLError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *UMLError) Unwrap() error {
	return e.Cause
}

// NewError creates a new UMLError.
func NewError(code, message string) *UMLError {
	return &UMLError{Code: code, Message: message}
}

// NewErrorf creates a new UMLError with a formatted message.
func NewErrorf(code, format string, args ...any) *UMLError {
	return &UMLError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPath attaches a document path or URL to the error.
func (e *UMLError) WithPath(path string) *UMLError {
	e.Path = path
	return e
}

// WithCause attaches an underlying cause.
func (e *UMLError) WithCause(err error) *UMLError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *UMLError) WithDetails(details map[string]any) *UMLError {
	e.Details = details
	return e
}
