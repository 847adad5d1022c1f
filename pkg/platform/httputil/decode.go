package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/requestcontext"
)

var (
	errEmptyBody    = dErrors.New(dErrors.CodeBadRequest, "request body is required")
	errInvalidBody  = dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	errTrailingData = dErrors.New(dErrors.CodeBadRequest, "request body must hold a single JSON object")
)

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// DecodeJSON decodes exactly one JSON value from the body.
// On failure it writes a 400 response and returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	return decode[T](w, r, logger, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted;
// an empty body yields the zero value.
func DecodeOptionalJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	return decode[T](w, r, logger, true)
}

func decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, optional bool) (*T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(&req)
	switch {
	case errors.Is(err, io.EOF) && optional:
		return &req, true
	case errors.Is(err, io.EOF):
		err = errEmptyBody
	case err != nil:
		err = dErrors.Wrap(err, dErrors.CodeBadRequest, errInvalidBody.Error())
	case dec.More():
		err = errTrailingData
	}
	if err != nil {
		ctx := r.Context()
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

// PrepareRequest normalizes then validates a request. Validation failures
// that are not already domain errors come back as CodeValidation.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
}

// DecodeAndPrepare combines DecodeJSON with Normalize and Validate.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if !prepare(w, r, logger, req) {
		return nil, false
	}
	return req, true
}

// DecodeOptionalAndPrepare combines DecodeOptionalJSON with Normalize and Validate.
func DecodeOptionalAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeOptionalJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if !prepare(w, r, logger, req) {
		return nil, false
	}
	return req, true
}

func prepare(w http.ResponseWriter, r *http.Request, logger *slog.Logger, req any) bool {
	if err := PrepareRequest(req); err != nil {
		ctx := r.Context()
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return false
	}
	return true
}
