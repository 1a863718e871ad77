package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
)

const maxBodySize = 1 << 20

var ErrInvalidBody = errors.New("invalid request body")

//nolint:tagliatelle // wire format
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON sends v with the given status code.
// If v cannot be encoded a 500 error response is sent instead.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("cannot encode response", log.ErrorField(err))
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorResponse{Detail: "cannot encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Warn("cannot write response", log.ErrorField(err))
	}
}

func WriteError(w http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(w, status, ErrorResponse{Detail: fmt.Sprintf(format, args...)})
}

// DecodeJSON reads the request body into v. Errors wrap ErrInvalidBody.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

// IntQuery returns the query parameter name as int or def if absent.
func IntQuery(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidBody, name)
	}
	return v, nil
}
