package importer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an import failed
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindAuthentication ErrorKind = "authentication"
	KindExtraction     ErrorKind = "extraction"
	KindUnexpected     ErrorKind = "unexpected"
)

// ConfigError reports a request or setup problem found before any external fetch
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigError) Unwrap() error   { return e.Err }
func (e *ConfigError) Kind() ErrorKind { return KindConfiguration }

// AuthError reports that the listing source rejected the credentials
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s: %v", e.Msg, e.Err)
	}
	return "authentication error: " + e.Msg
}

func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Kind() ErrorKind { return KindAuthentication }

// ExtractionError reports that a listing page did not yield recognizable records
type ExtractionError struct {
	Locator string
	Msg     string
	Err     error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction error: %s: %s", e.Locator, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error   { return e.Err }
func (e *ExtractionError) Kind() ErrorKind { return KindExtraction }

// Kind classifies any error returned by the importer
func Kind(err error) ErrorKind {
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindUnexpected
}
