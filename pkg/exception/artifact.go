package exception

import "errors"

var (
	ErrCorruptArtifact    = errors.New("artifact: corrupt container")
	ErrChecksumMismatch   = errors.New("artifact: payload checksum mismatch")
	ErrUnsupportedVersion = errors.New("artifact: unsupported container version")
)
