package oauth

import (
	"errors"
	"fmt"
)

// FailureKind classifies a Failure by where it originated.
type FailureKind string

const (
	// KindProtocol marks errors reported by the authorization server (error/error_description).
	KindProtocol FailureKind = "protocol"
	// KindTransport marks network, TLS and timeout failures talking to the token endpoint.
	KindTransport FailureKind = "transport"
	// KindValidation marks callbacks or responses rejected locally.
	KindValidation FailureKind = "validation"
)

// Machine-readable failure codes produced locally. Server-issued codes such as
// invalid_grant or access_denied are passed through unchanged.
const (
	CodeStateMismatch        = "state_mismatch"
	CodeInvalidResponse      = "invalid_response"
	CodeNoPendingRequest     = "no_pending_request"
	CodeRequestInProgress    = "request_in_progress"
	CodeAuthorizationTimeout = "authorization_timeout"
	CodeNetworkError         = "network_error"
	CodeInvalidRequest       = "invalid_request"
)

// Failure is the tagged failure shared by the authorization and token paths.
// Every externally visible failure carries a short Code plus a human readable Description.
type Failure struct {
	Kind        FailureKind `json:"-"`
	Code        string      `json:"error"`
	Description string      `json:"error_description,omitempty"`
	Cause       error       `json:"-"`
}

// Error returns a string representation of the failure.
func (f *Failure) Error() string {
	if f.Description != "" {
		return fmt.Sprintf("oauth %s error %s: %s", f.Kind, f.Code, f.Description)
	}
	return fmt.Sprintf("oauth %s error: %s", f.Kind, f.Code)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Message renders the failure the way it is shown to the user.
func (f *Failure) Message() string {
	message := "OAuth2 Error: " + f.Code
	if f.Description != "" {
		message += "\nDescription: " + f.Description
	}
	return message
}

func protocolFailure(code, description string) *Failure {
	if code == "" {
		code = "unknown_error"
	}
	return &Failure{Kind: KindProtocol, Code: code, Description: description}
}

func validationFailure(code, description string) *Failure {
	return &Failure{Kind: KindValidation, Code: code, Description: description}
}

func transportFailure(cause error) *Failure {
	return &Failure{Kind: KindTransport, Code: CodeNetworkError, Description: cause.Error(), Cause: cause}
}

// AsFailure extracts a *Failure from err. Errors of any other type are wrapped as
// transport failures so callers always see a code and description.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return transportFailure(err)
}

// IsCode reports whether err is a Failure with the given code.
func IsCode(err error, code string) bool {
	var f *Failure
	return errors.As(err, &f) && f.Code == code
}
