package exception

import "errors"

var (
	ErrSchemaMismatch = errors.New("schema: payload does not match dataset schema")
	ErrSchemaDrift    = errors.New("schema: stored partition schema drifted from registry")
)
