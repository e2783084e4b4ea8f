package datamodel

import (
	"errors"
	"fmt"
)

// ConversionErrorKind categorizes schema conversion failures.
type ConversionErrorKind string

const (
	// KindUnsupportedConstruct marks input outside the supported JSON Schema / XSD subset.
	KindUnsupportedConstruct ConversionErrorKind = "UnsupportedConstruct"
	// KindInvalidFileExtension marks an upload rejected before any conversion work.
	KindInvalidFileExtension ConversionErrorKind = "InvalidFileExtension"
	// KindInvalidSchema marks text that is not a well-formed schema document.
	KindInvalidSchema ConversionErrorKind = "InvalidSchema"
)

// Error codes surfaced to API callers.
const (
	ErrCodeJsonSchemaConvertError    = "JsonSchemaConvertError"
	ErrCodeXsdToJsonSchemaConvert    = "XsdToJsonSchemaConvertError"
	ErrCodeModelMetadataConvertError = "ModelMetadataConvertError"
	ErrCodeInvalidFileExtension      = "InvalidFileExtension"
	ErrCodeInvalidSchema             = "InvalidSchema"
)

// SchemaConversionError is a typed conversion failure carrying the offending keyword and
// pointer so callers can render a precise message.
type SchemaConversionError struct {
	Kind    ConversionErrorKind `json:"kind"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Keyword string              `json:"keyword,omitempty"`
	Pointer string              `json:"pointer,omitempty"`
	Details map[string]any      `json:"details,omitempty"`
	Cause   error               `json:"-"`
}

func (e *SchemaConversionError) Error() string {
	switch {
	case e.Keyword != "" && e.Pointer != "":
		return fmt.Sprintf("[%s:%s] keyword '%s' at %s: %s", e.Kind, e.Code, e.Keyword, e.Pointer, e.Message)
	case e.Pointer != "":
		return fmt.Sprintf("[%s:%s] at %s: %s", e.Kind, e.Code, e.Pointer, e.Message)
	case e.Keyword != "":
		return fmt.Sprintf("[%s:%s] keyword '%s': %s", e.Kind, e.Code, e.Keyword, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

func (e *SchemaConversionError) Unwrap() error {
	return e.Cause
}

// WithCode sets the surfaced error code.
func (e *SchemaConversionError) WithCode(code string) *SchemaConversionError {
	e.Code = code
	return e
}

// WithPointer sets the location of the offending construct.
func (e *SchemaConversionError) WithPointer(pointer string) *SchemaConversionError {
	e.Pointer = pointer
	return e
}

// WithDetail adds a single detail.
func (e *SchemaConversionError) WithDetail(key string, value any) *SchemaConversionError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause.
func (e *SchemaConversionError) WithCause(cause error) *SchemaConversionError {
	e.Cause = cause
	return e
}

// NewUnsupportedConstructError reports a keyword or XSD construct outside the supported subset.
func NewUnsupportedConstructError(keyword, pointer, message string) *SchemaConversionError {
	return &SchemaConversionError{
		Kind:    KindUnsupportedConstruct,
		Code:    ErrCodeJsonSchemaConvertError,
		Message: message,
		Keyword: keyword,
		Pointer: pointer,
	}
}

// NewInvalidFileExtensionError rejects an upload whose name lacks the expected extension.
func NewInvalidFileExtensionError(fileName, expected string) *SchemaConversionError {
	return &SchemaConversionError{
		Kind:    KindInvalidFileExtension,
		Code:    ErrCodeInvalidFileExtension,
		Message: fmt.Sprintf("file '%s' must have extension '%s'", fileName, expected),
		Details: map[string]any{"fileName": fileName, "expected": expected},
	}
}

// NewInvalidSchemaError reports text that could not be read as a schema document.
func NewInvalidSchemaError(message string, cause error) *SchemaConversionError {
	return &SchemaConversionError{
		Kind:    KindInvalidSchema,
		Code:    ErrCodeInvalidSchema,
		Message: message,
		Cause:   cause,
	}
}

// AsConversionError extracts a SchemaConversionError from an error chain.
func AsConversionError(err error) (*SchemaConversionError, bool) {
	var convErr *SchemaConversionError
	if errors.As(err, &convErr) {
		return convErr, true
	}
	return nil, false
}

// IsUnsupportedConstruct checks if an error is an unsupported construct error
func IsUnsupportedConstruct(err error) bool {
	convErr, ok := AsConversionError(err)
	return ok && convErr.Kind == KindUnsupportedConstruct
}

// IsInvalidFileExtension checks if an error is an upload extension error
func IsInvalidFileExtension(err error) bool {
	convErr, ok := AsConversionError(err)
	return ok && convErr.Kind == KindInvalidFileExtension
}

// IsInvalidSchema checks if an error is a malformed schema error
func IsInvalidSchema(err error) bool {
	convErr, ok := AsConversionError(err)
	return ok && convErr.Kind == KindInvalidSchema
}

// ErrorCode returns the surfaced code of a conversion error, or "" for other errors.
func ErrorCode(err error) string {
	if convErr, ok := AsConversionError(err); ok {
		return convErr.Code
	}
	return ""
}

// ============================================================================
// SchemaError Type and Constructors
// ============================================================================

// SchemaErrorType represents the type of schema storage error
type SchemaErrorType string

const (
	SchemaErrorTypeNotFound      SchemaErrorType = "schema_not_found"
	SchemaErrorTypeInvalidFormat SchemaErrorType = "invalid_format"
	SchemaErrorTypeProviderError SchemaErrorType = "provider_error"
	SchemaErrorTypeConfigError   SchemaErrorType = "config_error"
)

// SchemaError represents schema storage errors
type SchemaError struct {
	Type    SchemaErrorType `json:"type"`
	Path    string          `json:"path,omitempty"`
	Message string          `json:"message"`
	Cause   error           `json:"-"`
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema error [%s] %s: %s", e.Type, e.Path, e.Message)
	}
	return fmt.Sprintf("schema error [%s]: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(errorType SchemaErrorType, message string, cause error) *SchemaError {
	return &SchemaError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewSchemaNotFoundError creates a not found error for a stored path
func NewSchemaNotFoundError(path string, cause error) *SchemaError {
	return &SchemaError{
		Type:    SchemaErrorTypeNotFound,
		Path:    path,
		Message: "schema file not found",
		Cause:   cause,
	}
}

// IsSchemaError checks if an error is a SchemaError of a specific type
func IsSchemaError(err error, errorType SchemaErrorType) bool {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Type == errorType
	}
	return false
}

// IsNotFound checks if an error reports a missing stored file
func IsNotFound(err error) bool {
	return IsSchemaError(err, SchemaErrorTypeNotFound)
}
