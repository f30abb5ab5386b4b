package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("extraction session not found")
	ErrUnsupportedDocument = errors.New("unsupported document source")
)
