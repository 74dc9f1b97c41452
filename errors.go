package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownPretrained is returned when a name is neither a registered
	// pretrained configuration nor a local path.
	ErrUnknownPretrained = errors.New("unknown pretrained configuration")

	// ErrOffline is returned when a configuration must be downloaded but offline
	// mode is enabled and no cached copy exists.
	ErrOffline = errors.New("offline mode: configuration not in cache")
)

// FieldError reports a configuration field holding a value the model cannot use.
type FieldError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// UnrecognizedOptionError lists named options that no field of the
// configuration accepts.
type UnrecognizedOptionError struct {
	Options []string
}

func (e *UnrecognizedOptionError) Error() string {
	if len(e.Options) == 1 {
		return fmt.Sprintf("unrecognized option %q", e.Options[0])
	}
	quoted := make([]string, len(e.Options))
	for i, o := range e.Options {
		quoted[i] = fmt.Sprintf("%q", o)
	}
	return "unrecognized options " + strings.Join(quoted, ", ")
}
