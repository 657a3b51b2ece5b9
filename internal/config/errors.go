package config

import "fmt"

// ConfigurationError reports a missing or invalid setting detected at startup.
// It stops the process before any flow starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid configuration: %s %s: %v", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}
