package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/yanun0323/errors"

	"github.com/betedge/edgelake/internal/calendar"
	"github.com/betedge/edgelake/internal/catalog"
	"github.com/betedge/edgelake/internal/dispatch"
	"github.com/betedge/edgelake/internal/market"
	"github.com/betedge/edgelake/internal/partition"
	"github.com/betedge/edgelake/internal/scan"
	"github.com/betedge/edgelake/internal/schema"
	"github.com/betedge/edgelake/pkg/exception"
)

// healthProbeTimeout bounds the upstream readiness check.
const healthProbeTimeout = 5 * time.Second

// submitRequest is the POST /v1/jobs body. Historical datasets use the
// date range and interval; earnings uses the month range.
type submitRequest struct {
	Dataset      string `json:"dataset"`
	Symbol       string `json:"symbol"`
	StartDate    int    `json:"start_date"`
	EndDate      int    `json:"end_date"`
	Interval     int    `json:"interval"`
	StartMonth   int    `json:"start_month"`
	EndMonth     int    `json:"end_month"`
	ForceRefresh bool   `json:"force_refresh"`
}

func (r submitRequest) logical() (market.LogicalRequest, error) {
	kind, err := schema.ParseDatasetKind(r.Dataset)
	if err != nil {
		return nil, err
	}

	switch kind {
	case schema.DatasetStockQuote, schema.DatasetStockEOD:
		return market.StockRequest{
			Root:         r.Symbol,
			Start:        calendar.Date(r.StartDate),
			End:          calendar.Date(r.EndDate),
			Endpoint:     kind.Endpoint(),
			Interval:     r.Interval,
			ForceRefresh: r.ForceRefresh,
		}, nil
	case schema.DatasetOptionQuote, schema.DatasetOptionEOD:
		return market.OptionRequest{
			Root:         r.Symbol,
			Start:        calendar.Date(r.StartDate),
			End:          calendar.Date(r.EndDate),
			Endpoint:     kind.Endpoint(),
			Interval:     r.Interval,
			ForceRefresh: r.ForceRefresh,
		}, nil
	case schema.DatasetEarnings:
		return market.EarningsRequest{
			StartMonth:   partition.YearMonth(r.StartMonth),
			EndMonth:     partition.YearMonth(r.EndMonth),
			ForceRefresh: r.ForceRefresh,
		}, nil
	default:
		return nil, errors.Wrapf(exception.ErrUnknownDataset, "%s", r.Dataset)
	}
}

// jobView is the wire shape of a live job snapshot.
type jobView struct {
	JobID       string    `json:"job_id"`
	State       string    `json:"state"`
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	FailedSlots []int     `json:"failed_slots,omitempty"`
	Partitions  []string  `json:"partitions,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewStatus(st dispatch.Status) jobView {
	v := jobView{
		JobID:     st.JobID.String(),
		State:     st.State.String(),
		Completed: st.Completed,
		Total:     st.Total,
		CreatedAt: st.Created,
	}

	for _, f := range st.Failures {
		v.FailedSlots = append(v.FailedSlots, f.Slot)
	}

	for _, k := range st.Keys {
		v.Partitions = append(v.Partitions, k.String())
	}

	if st.Err != nil {
		v.Error = st.Err.Error()
	}

	return v
}

// recordView is the wire shape of a persisted catalog row.
type recordView struct {
	JobID       string    `json:"job_id"`
	Dataset     string    `json:"dataset"`
	Symbol      string    `json:"symbol,omitempty"`
	State       string    `json:"state"`
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	FailedSlots []int     `json:"failed_slots,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewRecord(rec catalog.Record) recordView {
	return recordView{
		JobID:       rec.ID.String(),
		Dataset:     rec.Dataset,
		Symbol:      rec.Symbol,
		State:       rec.State,
		Completed:   rec.CompletedParts,
		Total:       rec.TotalParts,
		FailedSlots: rec.FailedSlotList(),
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
	}
}

type healthView struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	view := healthView{
		Status: "ok",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}

	if s.cfg.Checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		if err := s.cfg.Checker.Ready(ctx); err != nil {
			view.Status = "degraded"
			view.Provider = "unreachable"
			view.Message = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, view)
			return
		}

		view.Provider = "ready"
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	mode, err := dispatch.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(exception.ErrInvalidArgument, "malformed submit body"))
		return
	}

	logical, err := req.logical()
	if err != nil {
		respondError(w, err)
		return
	}

	ticket, err := s.cfg.Dispatcher.Submit(r.Context(), logical, mode)
	if err != nil {
		if errors.Is(err, exception.ErrNothingToFetch) {
			respondJSON(w, http.StatusOK, map[string]string{
				"state":  "skipped",
				"reason": "every partition already exists",
			})
			return
		}

		respondError(w, err)
		return
	}

	st, err := s.cfg.Dispatcher.Poll(ticket.JobID)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusAccepted
	if mode == dispatch.ModeSync {
		status = http.StatusOK
	}

	respondJSON(w, status, viewStatus(st))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, errors.Wrapf(exception.ErrInvalidArgument, "job id %q", mux.Vars(r)["id"]))
		return
	}

	st, err := s.cfg.Dispatcher.Poll(id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, viewStatus(st))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, errors.Wrapf(exception.ErrInvalidArgument, "limit %q", raw))
			return
		}
		limit = n
	}

	// The catalog holds finished history across restarts; without it the
	// list covers only jobs this process has seen.
	if s.cfg.Catalog != nil {
		records, err := s.cfg.Catalog.List(r.Context(), limit)
		if err != nil {
			respondError(w, err)
			return
		}

		views := make([]recordView, 0, len(records))
		for _, rec := range records {
			views = append(views, viewRecord(rec))
		}

		respondJSON(w, http.StatusOK, views)
		return
	}

	statuses := s.cfg.Dispatcher.List()
	if limit > 0 && len(statuses) > limit {
		statuses = statuses[:limit]
	}

	views := make([]jobView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, viewStatus(st))
	}

	respondJSON(w, http.StatusOK, views)
}

type columnView struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Values any    `json:"values"`
}

type retrieveView struct {
	Dataset string       `json:"dataset"`
	Symbol  string       `json:"symbol,omitempty"`
	Rows    int          `json:"rows"`
	Found   []string     `json:"found"`
	Missing []string     `json:"missing,omitempty"`
	Columns []columnView `json:"columns"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, err := schema.ParseDatasetKind(q.Get("dataset"))
	if err != nil {
		respondError(w, err)
		return
	}

	req := scan.RetrieveRequest{
		Dataset: kind,
		Symbol:  q.Get("symbol"),
		All:     q.Get("all") == "true",
	}

	if raw := q.Get("interval"); raw != "" {
		ms, err := calendar.ParseInterval(raw)
		if err != nil {
			respondError(w, err)
			return
		}
		req.Interval = ms
	}

	if req.StartMonth, err = monthParam(q.Get("start_month")); err != nil {
		respondError(w, err)
		return
	}

	if req.EndMonth, err = monthParam(q.Get("end_month")); err != nil {
		respondError(w, err)
		return
	}

	result, err := s.cfg.Scanner.Retrieve(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, viewResult(kind, req.Symbol, result))
}

func monthParam(raw string) (partition.YearMonth, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "month %q", raw)
	}

	return partition.YearMonth(n), nil
}

func viewResult(kind schema.DatasetKind, symbol string, res *scan.Result) retrieveView {
	view := retrieveView{
		Dataset: kind.String(),
		Symbol:  symbol,
		Rows:    res.Table.NumRows(),
		Found:   keyStrings(res.Found),
		Missing: keyStrings(res.Missing),
	}

	spec := res.Table.Spec()
	view.Columns = make([]columnView, 0, len(spec.Columns))

	for i, col := range spec.Columns {
		vec := res.Table.Column(i)
		cv := columnView{Name: col.Name, Type: col.Type.String()}

		switch col.Type {
		case schema.ColumnInt16:
			cv.Values = vec.Int16s()
		case schema.ColumnInt32:
			cv.Values = vec.Int32s()
		case schema.ColumnInt64:
			cv.Values = vec.Int64s()
		case schema.ColumnFloat64:
			cv.Values = vec.Float64s()
		case schema.ColumnString:
			cv.Values = vec.Strings()
		}

		view.Columns = append(view.Columns, cv)
	}

	return view
}

func keyStrings(keys []partition.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}

	return out
}

type statsView struct {
	Fetches             map[string]uint64 `json:"fetches,omitempty"`
	Rows                map[string]uint64 `json:"rows,omitempty"`
	FetchFailures       uint64            `json:"fetch_failures"`
	JobsSubmitted       uint64            `json:"jobs_submitted"`
	JobsFinalized       uint64            `json:"jobs_finalized"`
	JobsAborted         uint64            `json:"jobs_aborted"`
	PartitionsCommitted uint64            `json:"partitions_committed"`
	BytesCommitted      uint64            `json:"bytes_committed"`
	EventsDropped       uint64            `json:"events_dropped"`
	FetchAvgMillis      int64             `json:"fetch_avg_ms"`
	CommitAvgMillis     int64             `json:"commit_avg_ms"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Metrics.Snapshot()

	view := statsView{
		FetchFailures:       snap.FetchFailures,
		JobsSubmitted:       snap.JobsSubmitted,
		JobsFinalized:       snap.JobsFinalized,
		JobsAborted:         snap.JobsAborted,
		PartitionsCommitted: snap.PartitionsCommitted,
		BytesCommitted:      snap.BytesCommitted,
		EventsDropped:       snap.EventsDropped,
		FetchAvgMillis:      snap.FetchLatency.Avg.Milliseconds(),
		CommitAvgMillis:     snap.CommitLatency.Avg.Milliseconds(),
	}

	if len(snap.FetchCounts) > 0 {
		view.Fetches = make(map[string]uint64, len(snap.FetchCounts))
		for kind, n := range snap.FetchCounts {
			view.Fetches[kind.String()] = n
		}
	}

	if len(snap.RowCounts) > 0 {
		view.Rows = make(map[string]uint64, len(snap.RowCounts))
		for kind, n := range snap.RowCounts {
			view.Rows[kind.String()] = n
		}
	}

	respondJSON(w, http.StatusOK, view)
}
