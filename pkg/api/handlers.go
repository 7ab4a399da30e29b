package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/vulcanize/mev-commit-indexer/pkg/store"
)

// PreconfsResponse is one page of the commitment view.
type PreconfsResponse struct {
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
	Total int64              `json:"total"`
	Data  []store.Commitment `json:"data"`
}

// TableSchemaResponse lists the columns of a table.
type TableSchemaResponse struct {
	Table   string             `json:"table"`
	Columns []store.ColumnInfo `json:"columns"`
}

// Nothing has been ingested yet is not an error for readers: every query sees an empty store.
func (s *Server) view(r *http.Request, fn func(*store.Session) error) (empty bool, err error) {
	err = s.store.View(r.Context(), fn)
	if errors.Is(err, store.ErrStoreNotFound) {
		return true, nil
	}
	return false, err
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables := []string{}
	_, err := s.view(r, func(sess *store.Session) error {
		var err error
		tables, err = sess.ListTables(r.Context())
		return err
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) tableSchema(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var columns []store.ColumnInfo
	empty, err := s.view(r, func(sess *store.Session) error {
		var err error
		columns, err = sess.TableSchema(r.Context(), name)
		return err
	})
	switch {
	case empty || errors.Is(err, store.ErrTableNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Table '%s' not found", name))
	case err != nil:
		writeInternalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, TableSchemaResponse{Table: name, Columns: columns})
	}
}

func (s *Server) listPreconfs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var problems validationErrors
	page := intParam(q, "page", DefaultPage, 1, 0, &problems)
	limit := intParam(q, "limit", DefaultLimit, 1, MaxLimit, &problems)
	filter := store.CommitmentFilter{
		Bidder:         q.Get("bidder"),
		BlockNumberMin: uint64Param(q, "block_number_min", &problems),
		BlockNumberMax: uint64Param(q, "block_number_max", &problems),
	}
	if len(problems) > 0 {
		writeError(w, http.StatusUnprocessableEntity, problems)
		return
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	resp := PreconfsResponse{Page: page, Limit: limit, Data: []store.Commitment{}}
	_, err := s.view(r, func(sess *store.Session) error {
		var err error
		resp.Data, resp.Total, err = sess.Commitments(r.Context(), filter)
		return err
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) aggregatePreconfs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("group_by_field")
	if _, ok := q["group_by_field"]; !ok {
		var problems validationErrors
		problems.add("missing", "group_by_field", "Field required", nil)
		writeError(w, http.StatusUnprocessableEntity, problems)
		return
	}
	if !store.IsCommitmentColumn(field) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid group_by_field '%s'", field))
		return
	}

	var aggregations []store.Aggregation
	_, err := s.view(r, func(sess *store.Session) error {
		var err error
		aggregations, err = sess.AggregateCommitments(r.Context(), field)
		return err
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	result := make([]map[string]interface{}, 0, len(aggregations))
	for _, a := range aggregations {
		result = append(result, map[string]interface{}{
			field:           a.GroupByValue,
			"preconf_count": a.PreconfCount,
			"average_bid":   a.AverageBid,
			"total_bid":     a.TotalBid,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	empty, err := s.view(r, func(*store.Session) error { return nil })
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "detail": err.Error()})
		return
	}
	status := map[string]string{"status": "ok", "store": "ready"}
	if empty {
		status["store"] = "empty"
	}
	writeJSON(w, http.StatusOK, status)
}

// intParam parses an optional integer parameter within [min, max]. A zero max means unbounded.
func intParam(q url.Values, name string, def int, min int, max int, problems *validationErrors) int {
	if _, ok := q[name]; !ok {
		return def
	}
	raw := q.Get(name)
	v, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		problems.add("int_parsing", name, "Input should be a valid integer, unable to parse string as an integer", &raw)
	case v < min:
		problems.add("greater_than_equal", name, fmt.Sprintf("Input should be greater than or equal to %d", min), &raw)
	case max > 0 && v > max:
		problems.add("less_than_equal", name, fmt.Sprintf("Input should be less than or equal to %d", max), &raw)
	default:
		return v
	}
	return def
}

func uint64Param(q url.Values, name string, problems *validationErrors) *uint64 {
	if _, ok := q[name]; !ok {
		return nil
	}
	raw := q.Get(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		problems.add("int_parsing", name, "Input should be a valid non-negative integer", &raw)
		return nil
	}
	return &v
}
