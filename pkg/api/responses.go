package api

import (
	"encoding/json"
	"net/http"

	"github.com/vulcanize/mev-commit-indexer/pkg/loghelper"
)

// An error body in the {"detail": ...} shape clients of the service expect.
type errorResponse struct {
	Detail interface{} `json:"detail"`
}

// One failed query parameter of a 422 response.
type fieldError struct {
	Type  string   `json:"type"`
	Loc   []string `json:"loc"`
	Msg   string   `json:"msg"`
	Input *string  `json:"input,omitempty"`
}

type validationErrors []fieldError

func (v *validationErrors) add(kind string, param string, msg string, input *string) {
	*v = append(*v, fieldError{Type: kind, Loc: []string{"query", param}, Msg: msg, Input: input})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		loghelper.LogError(err).Error("Unable to write the response")
	}
}

func writeError(w http.ResponseWriter, code int, detail interface{}) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	loghelper.LogEndpoint(r.Method, r.URL.Path).WithError(err).Error("Unable to answer the query")
	writeError(w, http.StatusInternalServerError, err.Error())
}
