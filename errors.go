package configcache

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when the resolved configuration file does not exist.
	ErrFileNotFound = errors.New("config file not found")
	// ErrParseFailure is returned when the file exists but does not hold a usable configuration object.
	ErrParseFailure = errors.New("config file not parseable")
	// ErrSchemaMismatch is returned when a checked document holds a key outside the allowed set.
	ErrSchemaMismatch = errors.New("config file check failed")
	// ErrSubkeyNotFound is returned when a requested subkey is missing or is not an object.
	ErrSubkeyNotFound = errors.New("config subkey not found")
)

// ConfigError describes a failed configuration request.
//
// Kind is one of the Err* sentinels above and is matched by errors.Is. Err holds
// the underlying cause, if any, and is returned by Unwrap.
type ConfigError struct {
	Kind error
	File string
	Key  string
	Err  error
}

func (e *ConfigError) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s for '%s'", msg, e.Key)
	}
	if e.File != "" {
		msg += " " + e.File
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *ConfigError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(kind error, file string, cause error) *ConfigError {
	return &ConfigError{Kind: kind, File: file, Err: cause}
}
