package entity

import "errors"

// ErrInvalidInput is returned when a required identifier is missing or blank.
// Operations failing with it have performed no work.
var ErrInvalidInput = errors.New("invalid input")
