package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"
	ErrTypeConflict   = "conflict"
)

// ErrorResponse is the body written on failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes v as the JSON body of a response with the given status code.
func JSON(w http.ResponseWriter, statusCode int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)
}

func BadRequest(w http.ResponseWriter, err error) {
	logs.WithTag("status", http.StatusBadRequest).Debug(err)
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func Conflict(w http.ResponseWriter, err error) {
	JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
}

func MethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// InternalServerError logs err and writes a generic body so that internal
// details are not leaked.
func InternalServerError(w http.ResponseWriter, err error) {
	logs.WithTag("status", http.StatusInternalServerError).Warn(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"internal server error"}`))
}
