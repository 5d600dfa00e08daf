package market

import (
	"net/http"

	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/schema"
)

// Encoding is the payload encoding a sub-request expects back.
type Encoding uint8

const (
	_encoding_beg Encoding = iota
	EncodingCSV
	EncodingJSON
	_encoding_end
)

func (e Encoding) IsAvailable() bool {
	return e > _encoding_beg && e < _encoding_end
}

// SubRequest is one fully resolved fetch unit. Expansion produces the
// complete set up front; nothing about a sub-request changes once the
// dispatcher has numbered its slot.
type SubRequest struct {
	URL      string
	Header   http.Header
	Encoding Encoding
	Kind     schema.DatasetKind
	Key      partition.Key

	// Slot is the position inside the parent job, assigned by the
	// dispatcher after skip-existing filtering.
	Slot int

	// Underlying marks the stock leg of an option ingest. The payload is
	// stock shaped and gains contract columns during normalization.
	Underlying bool
}

// MonthPlan groups the fetch units that commit into one partition.
type MonthPlan struct {
	Key  partition.Key
	Subs []SubRequest
}

// Endpoints carries the upstream base URLs. Explicit construction keeps the
// planners free of ambient state.
type Endpoints struct {
	ThetaBaseURL    string
	EarningsBaseURL string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		ThetaBaseURL:    "http://127.0.0.1:25510/v2",
		EarningsBaseURL: "https://api.nasdaq.com/api/calendar/earnings",
	}
}

// LogicalRequest is one user-facing ingest request. Implementations are the
// closed set of request types the pipeline accepts.
type LogicalRequest interface {
	// Kind is the dataset the request commits into.
	Kind() schema.DatasetKind

	// Symbol is the underlying symbol, empty for earnings.
	Symbol() string

	// Refresh reports whether existing partitions should be fetched again.
	Refresh() bool

	// Validate rejects the request before any expansion work happens.
	Validate() error

	// Plan expands the request into per-month fetch units, ascending by
	// month. Months with no trading days inside the range are omitted.
	Plan(ep Endpoints) ([]MonthPlan, error)

	String() string
}
