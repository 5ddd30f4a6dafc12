package domain

import "errors"

var (
	ErrCaseNotFound        = errors.New("case not found")
	ErrNoRecords           = errors.New("no records")
	ErrInsufficientOverlap = errors.New("insufficient overlap between series")
)
