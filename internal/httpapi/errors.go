package httpapi

import (
	"encoding/json"
	"net/http"

	"ollamad/internal/apperr"
	"ollamad/pkg/types"
)

// statusFor maps an error kind onto the HTTP status returned to callers.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindBadRequest, apperr.KindEncodingFailure:
		return http.StatusBadRequest
	case apperr.KindModelNotFound:
		return http.StatusNotFound
	case apperr.KindConcurrencyTimeout:
		return http.StatusTooManyRequests
	case apperr.KindRegistryFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the payload for err. Unclassified errors never leak their text.
func errorBody(err error) types.ErrorResponse {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if kind == apperr.KindUnknown {
		msg = "internal error"
	}
	return types.ErrorResponse{Error: msg, Kind: kind.String(), Code: statusFor(kind)}
}

// writeError writes err as a JSON error with its mapped status.
func writeError(w http.ResponseWriter, err error) int {
	body := errorBody(err)
	if body.Code == http.StatusTooManyRequests {
		IncrementBackpressure("busy")
	}
	writeJSON(w, body.Code, body)
	return body.Code
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind apperr.Kind, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Kind: kind.String(), Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
