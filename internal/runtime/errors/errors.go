package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired             = sterrors.New("cepflow: event service is required")
	ErrHandlerRequired             = sterrors.New("cepflow: handler function is required")
	ErrConsumeQueueRequired        = sterrors.New("cepflow: consume queue is required")
	ErrHandlerNameRequired         = sterrors.New("cepflow: handler name is required")
	ErrConsumeMessageTypeRequired  = sterrors.New("cepflow: consume message type is required")
	ErrConsumeMessagePointerNeeded = sterrors.New("cepflow: consume message type must be a pointer")
	ErrPublisherRequired           = sterrors.New("cepflow: publisher is required")
	ErrTopicRequired               = sterrors.New("cepflow: topic is required")
	ErrPatternRequired             = sterrors.New("cepflow: compiled pattern is required")
	ErrTimestampFuncRequired       = sterrors.New("cepflow: timestamp function is required")
	ErrConfigRequired              = sterrors.New("cepflow: configuration is required")
	ErrLoggerRequired              = sterrors.New("cepflow: logger is required")
	ErrEventPayloadRequired        = sterrors.New("cepflow: event payload is required")
)

// ConfigValidationError wraps a configuration validation failure.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("cepflow: invalid configuration: %s", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err as a ConfigValidationError, returning nil if err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
