// Package httpapi exposes the Notes record store as a JSON API.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/and161185/chartkeeper/internal/errs"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JSON writes data in a success envelope.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{Success: statusCode < 400, Data: data})
}

// Error writes err in a failure envelope with the status and code of its kind.
func Error(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	statusCode, ok := kindStatus[kind]
	msg := err.Error()
	if !ok {
		statusCode, kind, msg = http.StatusInternalServerError, errs.KindUnknown, "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Response{Error: msg, Code: kind.String()})
}

var kindStatus = map[errs.Kind]int{
	errs.KindNotFound:     http.StatusNotFound,
	errs.KindForbidden:    http.StatusForbidden,
	errs.KindUnauthorized: http.StatusUnauthorized,
	errs.KindGone:         http.StatusGone,
	errs.KindValidation:   http.StatusUnprocessableEntity,
	errs.KindRateLimited:  http.StatusTooManyRequests,
	errs.KindConflict:     http.StatusConflict,
	errs.KindTransient:    http.StatusServiceUnavailable,
}
