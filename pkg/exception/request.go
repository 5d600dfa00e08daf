package exception

import "errors"

var (
	ErrInvalidRange    = errors.New("request: date range is invalid")
	ErrEmptyExpansion  = errors.New("request: expansion produced no fetch units")
	ErrNothingToFetch  = errors.New("request: every partition already exists")
	ErrUnknownDataset  = errors.New("request: unknown dataset kind")
	ErrInvalidInterval = errors.New("request: unsupported interval")
)
