// Package apperr defines the error taxonomy shared by the glossary packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrIllegalName   = errors.New("illegal term name")
	ErrMalformedTag  = errors.New("malformed tag")
	ErrImmutable     = errors.New("snapshot is immutable")
	ErrNoProject     = errors.New("no project path")
)
