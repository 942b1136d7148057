package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendlink/vendlink-core/internal/lookup"
)

// resolveResponse is the body for GET /resolve/{code}.
type resolveResponse struct {
	Code     string `json:"code"`
	DeviceID string `json:"device_id"`
}

// handleResolve maps a printed machine code to its device ID. An optional
// sig query parameter carries the HMAC signature from a QR link.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeNotFound(w, "code lookup is not configured")
		return
	}

	code := chi.URLParam(r, "code")
	sig := r.URL.Query().Get("sig")

	deviceID, err := s.resolver.Resolve(code, sig)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resolveResponse{
			Code:     lookup.Normalize(code),
			DeviceID: deviceID,
		})
	case errors.Is(err, lookup.ErrInvalidCode):
		writeBadRequest(w, "machine code is required")
	case errors.Is(err, lookup.ErrBadSignature):
		writeUnauthorized(w, "code signature is invalid")
	case errors.Is(err, lookup.ErrUnknownCode):
		writeNotFound(w, "unknown machine code")
	default:
		writeInternalError(w, "code lookup failed")
	}
}
