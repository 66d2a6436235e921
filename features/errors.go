package features

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFrames is returned by extractors that produced no chroma frames
	ErrNoFrames = errors.New("bundle has no chroma frames")

	// ErrUnsupportedFormat is returned for bundle files with an unknown extension
	ErrUnsupportedFormat = errors.New("unsupported bundle format")
)

// BundleError describes a malformed feature bundle
type BundleError struct {
	Field   string
	Index   int
	Message string
	Cause   error
}

// NewBundleError creates a bundle error for a field
func NewBundleError(field, message string, cause error) *BundleError {
	return &BundleError{
		Field:   field,
		Index:   -1,
		Message: message,
		Cause:   cause,
	}
}

// WithIndex records the offending element index
func (e *BundleError) WithIndex(index int) *BundleError {
	e.Index = index
	return e
}

func (e *BundleError) Error() string {
	location := e.Field
	if e.Index >= 0 {
		location = fmt.Sprintf("%s[%d]", e.Field, e.Index)
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid bundle field %s: %s: %v", location, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid bundle field %s: %s", location, e.Message)
}

func (e *BundleError) Unwrap() error {
	return e.Cause
}
