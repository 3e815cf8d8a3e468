// Package response writes JSON bodies and the error envelope
// {message, code, ...details}.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nextest/portal-auth/internal/apperr"
)

func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.WarnContext(r.Context(), "encode response body", "error", err, "request_id", chimiddleware.GetReqID(r.Context()))
	}
}

// Error writes an envelope for failures raised outside the service layer,
// such as middleware rejections.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := make(map[string]any, len(details)+2)
	for k, v := range details {
		body[k] = v
	}
	body["message"] = message
	body["code"] = code
	JSON(w, r, status, body)
}

// Fail maps err through the apperr taxonomy. When debug is set, internal
// errors also carry the cause and its stack.
func Fail(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	ae := apperr.As(err)
	status := apperr.HTTPStatus(ae.Kind)

	body := make(map[string]any, len(ae.Details)+4)
	for k, v := range ae.Details {
		body[k] = v
	}
	body["message"] = ae.Message
	body["code"] = ae.Code

	if retry, ok := ae.Details["retryAfter"].(int); ok && retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"code", ae.Code,
			"error", err.Error(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
		if debug && ae.Kind == apperr.KindInternal {
			body["error"] = err.Error()
			if stack := apperr.Stack(err); stack != "" {
				body["stack"] = stack
			}
		}
	}
	JSON(w, r, status, body)
}

// DecodeJSON reads exactly one JSON object from the request body. Unknown
// fields and trailing data are rejected; an empty body decodes to the zero
// value.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
