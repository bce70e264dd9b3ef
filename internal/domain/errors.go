package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
	ErrNetwork      = errors.New("network failure")
	ErrConflict     = errors.New("conflict")
)
