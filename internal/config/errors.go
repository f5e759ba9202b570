package config

import (
	"fmt"
)

// ConfigurationError is a failure to read or parse a configuration source.
type ConfigurationError struct {
	FilePath  string `json:"filePath"`
	ErrorType string `json:"errorType"` // io, parse, env, secret
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(filePath, errorType, message string, err error) *ConfigurationError {
	return &ConfigurationError{
		FilePath:  filePath,
		ErrorType: errorType,
		Message:   message,
		Err:       err,
	}
}

func (ce *ConfigurationError) Error() string {
	msg := fmt.Sprintf("[%s] %s", ce.ErrorType, ce.Message)
	if ce.FilePath != "" {
		msg = fmt.Sprintf("%s: %s", ce.FilePath, msg)
	}
	if ce.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, ce.Err)
	}
	return msg
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}
