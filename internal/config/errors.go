package config

import "fmt"

// DefinitionErrorKind classifies a compile-time definition problem.
type DefinitionErrorKind string

const (
	KindCycle          DefinitionErrorKind = "cycle"
	KindUnresolvedRef  DefinitionErrorKind = "unresolved_reference"
	KindInvalidMatrix  DefinitionErrorKind = "invalid_matrix"
	KindDuplicate      DefinitionErrorKind = "duplicate"
	KindInvalidDoc     DefinitionErrorKind = "invalid_document"
	KindInvalidTrigger DefinitionErrorKind = "invalid_trigger"
)

// DefinitionError is fatal at compile time: no job runs when one is returned.
type DefinitionError struct {
	Kind    DefinitionErrorKind
	Subject string
	Detail  string
	Err     error
}

// Errorf builds a DefinitionError.
func Errorf(kind DefinitionErrorKind, subject, format string, args ...any) *DefinitionError {
	return &DefinitionError{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds a DefinitionError around an underlying cause.
func Wrap(kind DefinitionErrorKind, subject string, err error) *DefinitionError {
	return &DefinitionError{Kind: kind, Subject: subject, Detail: err.Error(), Err: err}
}

func (e *DefinitionError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("definition error (%s): %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("definition error (%s) in %s: %s", e.Kind, e.Subject, e.Detail)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}
