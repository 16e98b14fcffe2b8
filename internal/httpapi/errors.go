package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/audit"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/obs"
	"coursehub.org/internal/validation"
)

type errorBody struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorDetails(w, r, code, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, code int, msg string, details map[string]string) {
	writeJSON(w, code, errorBody{
		Error:     msg,
		Details:   details,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// respondErr maps a service error onto the HTTP taxonomy. Anything it does not
// recognise is logged in full and answered with a generic 500.
func (a *API) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if fields, ok := validation.FieldsOf(err); ok {
		writeErrorDetails(w, r, http.StatusBadRequest, "invalid input", fields)
		return
	}
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, academics.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrEmailTaken):
		writeErrorDetails(w, r, http.StatusConflict, "email already registered", map[string]string{"email": "email_taken"})
	case errors.Is(err, academics.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		a.internalError(w, r, err)
	}
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, err error) {
	rid := audit.RequestIDFromContext(r.Context())
	obs.Logger().Error("request failed",
		zap.String("request_id", rid),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	body := errorBody{Error: "internal server error", RequestID: rid}
	if a.dev && err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// badBody answers a decode failure: 413 when the body limit was hit, 400 otherwise.
func badBody(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, r, http.StatusBadRequest, "malformed JSON body: "+err.Error())
}
