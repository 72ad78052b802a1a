// Package httputil centralizes the JSON response envelopes so every handler
// emits the same shapes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "claimstack/pkg/domain-errors"
)

// ErrorBody is the error envelope: {"error":{"statusCode","code","message"}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code alongside the HTTP status.
type ErrorDetail struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Meta is the pagination block shared by all list responses.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// ListBody wraps list data with pagination metadata.
type ListBody struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// DataBody wraps a single resource: {"data": {...}}.
type DataBody struct {
	Data any `json:"data"`
}

// WriteData writes the single-resource envelope with the given status.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, DataBody{Data: data})
}

// NewMeta computes totalPages from a count and limit. Limit is assumed
// positive (handlers clamp it before querying).
func NewMeta(page, limit, totalCount int) Meta {
	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + limit - 1) / limit
	}
	return Meta{Page: page, Limit: limit, TotalCount: totalCount, TotalPages: totalPages}
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteList writes the {data, meta} envelope with status 200.
func WriteList(w http.ResponseWriter, data any, meta Meta) {
	WriteJSON(w, http.StatusOK, ListBody{Data: data, Meta: meta})
}

// Decode parses the JSON request body into T. On malformed input it writes
// the validation error envelope and reports false; the handler just returns.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return req, false
	}
	return req, true
}

// WriteError translates a domain error into the error envelope. Internal
// errors get a generic message so causes never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	message := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal {
		message = "internal server error"
	}
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{
		StatusCode: status,
		Code:       string(code),
		Message:    message,
	}})
}
