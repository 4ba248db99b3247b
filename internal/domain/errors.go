package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConversion ErrorType = "conversion"
	ErrorTypeDetection  ErrorType = "detection"
	ErrorTypeOCR        ErrorType = "ocr"
	ErrorTypeSeal       ErrorType = "seal"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// Response codes carried in the JSON envelope.
const (
	CodeSuccess          = 200
	CodeMissingImagePart = 40101
	CodeEmptyFilename    = 40102
	CodeConversionFailed = 40103
	CodeUnsupportedType  = 40104
	CodeInvalidSize      = 40105
	CodeInternalError    = 500
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Code    int
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, code int, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(code int, message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, code, message, err)
}

func ConversionError(message string, err error) *DomainError {
	return NewError(ErrorTypeConversion, CodeConversionFailed, message, err)
}

func DetectionError(message string, err error) *DomainError {
	return NewError(ErrorTypeDetection, CodeInternalError, message, err)
}

func OCRError(message string, err error) *DomainError {
	return NewError(ErrorTypeOCR, CodeInternalError, message, err)
}

func SealServiceError(message string, err error) *DomainError {
	return NewError(ErrorTypeSeal, CodeInternalError, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, CodeInternalError, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, CodeInternalError, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, CodeInternalError, message, err)
}

func InternalError(message string, err error) *DomainError {
	return NewError(ErrorTypeInternal, CodeInternalError, message, err)
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// CodeOf returns the envelope code for err. Errors that are not domain errors
// map to CodeInternalError.
func CodeOf(err error) int {
	var de *DomainError
	if errors.As(err, &de) && de.Code != 0 {
		return de.Code
	}
	return CodeInternalError
}
