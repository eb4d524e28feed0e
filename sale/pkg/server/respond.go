package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/malbeclabs/stagesale/sale/pkg/address"
	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
)

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch saleerr.KindOf(err) {
	case saleerr.KindValidation:
		return http.StatusBadRequest
	case saleerr.KindAuthorization:
		return http.StatusForbidden
	case saleerr.KindNotFound:
		return http.StatusNotFound
	case saleerr.KindState:
		return http.StatusConflict
	case saleerr.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("server: failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:   saleerr.KindOf(err).String(),
		Message: err.Error(),
	}
	var e *saleerr.Error
	if errors.As(err, &e) {
		resp.Op = e.Op
	}

	if status == http.StatusInternalServerError {
		s.log.Error("server: request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		hub.CaptureException(err)
		resp.Message = "internal error"
	}
	s.writeJSON(w, status, resp)
}

// decode reads a JSON body into dst. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return saleerr.Validationf(op, "invalid request body: %v", err)
	}
	return nil
}

// caller returns the identity asserted in the caller header.
func caller(r *http.Request, op string) (solana.PublicKey, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return solana.PublicKey{}, saleerr.Validationf(op, "%s header is required", CallerHeader)
	}
	pk, err := address.Parse(raw)
	if err != nil {
		return solana.PublicKey{}, saleerr.Validationf(op, "invalid %s header: %v", CallerHeader, err)
	}
	return pk, nil
}

func urlAddress(r *http.Request, op, param string) (solana.PublicKey, error) {
	pk, err := address.Parse(chi.URLParam(r, param))
	if err != nil {
		return solana.PublicKey{}, saleerr.Validationf(op, "invalid %s: %v", param, err)
	}
	return pk, nil
}
