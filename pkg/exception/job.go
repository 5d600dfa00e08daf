package exception

import "errors"

var (
	ErrInvalidJob   = errors.New("job: invalid job")
	ErrJobFinalized = errors.New("job: already finalized")
	ErrJobNotFound  = errors.New("job: not found")
)
