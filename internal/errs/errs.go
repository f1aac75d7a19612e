// Package errs defines the error kinds raised by the billing core.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a billing error.
type Kind string

const (
	// KindUnknownClass is raised for a customer class with no strategy or rate entry.
	KindUnknownClass Kind = "UNKNOWN_CLASS"

	// KindUnknownFlag is raised for a tariff flag missing from the registry.
	KindUnknownFlag Kind = "UNKNOWN_FLAG"

	// KindInvalidConsumption is raised for negative consumption.
	KindInvalidConsumption Kind = "INVALID_CONSUMPTION"

	// KindInvalidPercentage is raised for a percentage outside [0, 1].
	KindInvalidPercentage Kind = "INVALID_PERCENTAGE"

	// KindInvalidAmount is raised for a negative fee, rate or charge.
	KindInvalidAmount Kind = "INVALID_AMOUNT"

	// KindInvalidTiers is raised for empty or non-increasing tier tables.
	KindInvalidTiers Kind = "INVALID_TIERS"

	// KindInvalidReading is raised for meter readings that go backwards.
	KindInvalidReading Kind = "INVALID_READING"
)

// Sentinels usable with errors.Is. Any *Error of the same kind matches.
var (
	ErrUnknownClass       = &Error{Kind: KindUnknownClass, Message: "unknown customer class"}
	ErrUnknownFlag        = &Error{Kind: KindUnknownFlag, Message: "unknown tariff flag"}
	ErrInvalidConsumption = &Error{Kind: KindInvalidConsumption, Message: "consumption must not be negative"}
	ErrInvalidPercentage  = &Error{Kind: KindInvalidPercentage, Message: "percentage must be within [0, 1]"}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount, Message: "amount must not be negative"}
	ErrInvalidTiers       = &Error{Kind: KindInvalidTiers, Message: "invalid tier table"}
	ErrInvalidReading     = &Error{Kind: KindInvalidReading, Message: "invalid meter reading"}
)

// Error is a billing failure with its kind and optional context.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithContext adds a context value and returns e.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UnknownClass reports an unrecognized customer class.
func UnknownClass(class string) *Error {
	return Newf(KindUnknownClass, "unknown customer class %q", class).WithContext("class", class)
}

// UnknownFlag reports a tariff flag absent from the registry.
func UnknownFlag(flag string) *Error {
	return Newf(KindUnknownFlag, "unknown tariff flag %q", flag).WithContext("flag", flag)
}
