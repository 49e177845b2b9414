package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrNotImplemented is returned when a declared task type has no automation routine yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrRunActive is returned when a run is requested while another one is still running.
	ErrRunActive = errors.New("a run is already active")
)
