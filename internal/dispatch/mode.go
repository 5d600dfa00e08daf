package dispatch

import (
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/pkg/exception"
)

// Mode selects how Submit returns. Async hands back a ticket immediately;
// sync waits for the commit.
type Mode uint8

const (
	_mode_beg Mode = iota
	ModeAsync
	ModeSync
	_mode_end
)

func (m Mode) IsAvailable() bool {
	return m > _mode_beg && m < _mode_end
}

func (m Mode) String() string {
	switch m {
	case ModeAsync:
		return "async"
	case ModeSync:
		return "sync"
	default:
		return "unknown"
	}
}

// ParseMode maps the external mode name back to its value. Empty selects
// async, the manager API default.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "async":
		return ModeAsync, nil
	case "sync":
		return ModeSync, nil
	default:
		return _mode_beg, errors.Wrapf(exception.ErrInvalidArgument, "submit mode %q", s)
	}
}
