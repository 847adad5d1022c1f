package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "enrollgate/pkg/domain-errors"
)

// retryAfterSeconds is advertised on every unavailable response.
const retryAfterSeconds = "5"

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		switch {
		case dErrors.Retryable(err):
			w.Header().Set("Retry-After", retryAfterSeconds)
			response["error_description"] = dErrors.UnavailableMessage
		case domainErr.Code == dErrors.CodeInternal:
			// internal details stay in the logs
		case domainErr.Message != "":
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to error strings for JSON responses.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
