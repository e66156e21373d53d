package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeExtraction represents malformed or missing feed item sub-elements
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeRenderingTimeout represents feed markers that never appeared
	ErrorTypeRenderingTimeout ErrorType = "rendering_timeout"
	// ErrorTypeNavigation represents a failure to open the feed page
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypePersistence represents storage transaction failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
)

// HarvestError represents a pipeline error tagged with the component that raised it
type HarvestError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *HarvestError) Error() string {
	if e.Component == "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *HarvestError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *HarvestError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNavigation:
		return true
	default:
		return false
	}
}

// New creates a new HarvestError
func New(errType ErrorType, component, message string, err error) *HarvestError {
	return &HarvestError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewExtraction creates a new extraction error
func NewExtraction(component, message string, err error) *HarvestError {
	return New(ErrorTypeExtraction, component, message, err)
}

// NewRenderingTimeout creates a new rendering timeout error
func NewRenderingTimeout(component string, waited time.Duration) *HarvestError {
	message := fmt.Sprintf("no feed markers after %v", waited)
	return New(ErrorTypeRenderingTimeout, component, message, nil)
}

// NewNavigation creates a new navigation error
func NewNavigation(component, message string, err error) *HarvestError {
	return New(ErrorTypeNavigation, component, message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(component, message string, err error) *HarvestError {
	return New(ErrorTypePersistence, component, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *HarvestError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewCache creates a new cache error
func NewCache(component, message string, err error) *HarvestError {
	return New(ErrorTypeCache, component, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(component, message string, err error) *HarvestError {
	return New(ErrorTypePublisher, component, message, err)
}

// IsType reports whether err wraps a HarvestError of the given type
func IsType(err error, errType ErrorType) bool {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.Type == errType
	}
	return false
}

// IsRetryable reports whether err wraps a HarvestError worth retrying on a
// later run
func IsRetryable(err error) bool {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.IsRetryable()
	}
	return false
}
