package exception

import "errors"

var (
	ErrObjectMissing    = errors.New("store: object does not exist")
	ErrMissingPartition = errors.New("store: requested partition is missing")
)
