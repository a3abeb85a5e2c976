package store

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownSection    = errors.New("unknown section")
)
