package model

import (
	"fmt"
	"strings"
)

// ValidationError reports which fields of a message or entity violated their
// constraints. Inputs failing validation are dropped without retry.
type ValidationError struct {
	Subject string
	Fields  []FieldError
}

// FieldError is a single field constraint violation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Subject)
	b.WriteString(": invalid input")
	for _, f := range e.Fields {
		b.WriteString("; ")
		b.WriteString(f.Field)
		b.WriteString(" ")
		b.WriteString(f.Reason)
	}
	return b.String()
}

// validator accumulates field errors for one subject.
type validator struct {
	subject string
	fields  []FieldError
}

func newValidator(subject string) *validator {
	return &validator{subject: subject}
}

func (v *validator) add(field, reason string) {
	v.fields = append(v.fields, FieldError{Field: field, Reason: reason})
}

func (v *validator) addf(format string, i int, reason string) {
	v.add(fmt.Sprintf(format, i), reason)
}

// text checks a string length against [min,max]; max 0 means unbounded.
func (v *validator) text(field, value string, min, max int) {
	if len(value) < min {
		v.add(field, fmt.Sprintf("must be at least %d chars", min))
		return
	}
	if max > 0 && len(value) > max {
		v.add(field, fmt.Sprintf("must be at most %d chars", max))
	}
}

// domain checks a company domain natural key.
func (v *validator) domain(field, value string) {
	v.text(field, value, 1, 255)
	if value != "" && strings.ContainsAny(value, " \t\n") {
		v.add(field, "must not contain whitespace")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Subject: v.subject, Fields: v.fields}
}
