package errors

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ValidationError    ErrorType = "validation_error"
	NotFoundError      ErrorType = "not_found_error"
	StoreError         ErrorType = "store_error"
	OCRProcessingError ErrorType = "ocr_processing_error"
	FileTooLargeError  ErrorType = "file_too_large_error"
	Unexpected         ErrorType = "unexpected_error"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"http_status"`
	Timestamp  time.Time              `json:"timestamp"`
	TraceID    string                 `json:"trace_id,omitempty"`
	File       string                 `json:"file,omitempty"`
	Line       int                    `json:"line,omitempty"`
	Function   string                 `json:"function,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	InnerError error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.InnerError
}

func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithTrace(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// New creates a new AppError, capturing the caller's location.
func New(errType ErrorType, code, message string) *AppError {
	err := &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(errType),
		Timestamp:  time.Now(),
	}

	if pc, file, line, ok := runtime.Caller(1); ok {
		err.File = file
		err.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			err.Function = fn.Name()
		}
	}

	return err
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	appErr := New(errType, code, message)
	appErr.InnerError = err
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

func Newf(errType ErrorType, code, format string, args ...interface{}) *AppError {
	return New(errType, code, fmt.Sprintf(format, args...))
}

func Wrapf(err error, errType ErrorType, code, format string, args ...interface{}) *AppError {
	return Wrap(err, errType, code, fmt.Sprintf(format, args...))
}

// Predefined error constructors

func NewValidationError(message string) *AppError {
	return New(ValidationError, "VALIDATION_FAILED", message)
}

func NewNotFoundError(resource string) *AppError {
	return New(NotFoundError, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewStoreError(message string) *AppError {
	return New(StoreError, "STORE_ERROR", message)
}

func NewOCRProcessingError(message string) *AppError {
	return New(OCRProcessingError, "OCR_PROCESSING_FAILED", message)
}

func NewUnexpectedError(message string) *AppError {
	return New(Unexpected, "UNEXPECTED_ERROR", message)
}

// File processing specific errors: an unsupported type is a ValidationError
// (400), an oversized file is a FileTooLargeError (413).

func NewUnsupportedFileTypeError(fileType string) *AppError {
	return New(ValidationError, "UNSUPPORTED_FILE_TYPE", fmt.Sprintf("file type '%s' is not supported", fileType))
}

func NewFileSizeError(size, maxSize int64) *AppError {
	return New(FileTooLargeError, "FILE_SIZE_EXCEEDED", fmt.Sprintf("file size %d bytes exceeds maximum allowed size of %d bytes", size, maxSize))
}

// Error response structure for API
type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

func NewErrorResponse(err *AppError) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Success: false,
	}
}

// getHTTPStatus maps error types to HTTP status codes
func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case StoreError:
		return http.StatusServiceUnavailable
	case OCRProcessingError:
		return http.StatusUnprocessableEntity
	case FileTooLargeError:
		return http.StatusRequestEntityTooLarge
	case Unexpected:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

func IsType(err error, errType ErrorType) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == errType
	}
	return false
}

func IsCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

func GetHTTPStatus(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// RecoveryHandler turns a panic into an Unexpected AppError, with a stack trace attached.
func RecoveryHandler() func() *AppError {
	return func() *AppError {
		if r := recover(); r != nil {
			var err *AppError
			switch v := r.(type) {
			case error:
				err = Wrap(v, Unexpected, "PANIC_RECOVERED", "panic recovered")
			case string:
				err = New(Unexpected, "PANIC_RECOVERED", v)
			default:
				err = New(Unexpected, "PANIC_RECOVERED", fmt.Sprintf("panic recovered: %v", v))
			}

			buf := make([]byte, 1024)
			for {
				n := runtime.Stack(buf, false)
				if n < len(buf) {
					buf = buf[:n]
					break
				}
				buf = make([]byte, 2*len(buf))
			}
			err.WithContext("stack_trace", string(buf))
			return err
		}
		return nil
	}
}

// ErrorChain collects multiple errors, e.g. from validating several pages at once.
type ErrorChain struct {
	errors []*AppError
}

func NewErrorChain() *ErrorChain {
	return &ErrorChain{errors: make([]*AppError, 0)}
}

func (ec *ErrorChain) Add(err *AppError) *ErrorChain {
	ec.errors = append(ec.errors, err)
	return ec
}

func (ec *ErrorChain) HasErrors() bool {
	return len(ec.errors) > 0
}

func (ec *ErrorChain) Errors() []*AppError {
	return ec.errors
}

func (ec *ErrorChain) Error() string {
	if len(ec.errors) == 0 {
		return ""
	}
	if len(ec.errors) == 1 {
		return ec.errors[0].Error()
	}
	return fmt.Sprintf("multiple errors occurred: %d errors", len(ec.errors))
}

func (ec *ErrorChain) First() *AppError {
	if len(ec.errors) == 0 {
		return nil
	}
	return ec.errors[0]
}
