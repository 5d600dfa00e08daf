package exception

import "errors"

var (
	ErrFetchTransient   = errors.New("fetch: transient upstream failure")
	ErrFetchPermanent   = errors.New("fetch: permanent upstream failure")
	ErrProviderNotReady = errors.New("fetch: provider is not ready")
)
