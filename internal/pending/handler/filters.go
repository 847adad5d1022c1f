package handler

import (
	"net/http"
	"strconv"
	"strings"

	"enrollgate/internal/pending/models"
	dErrors "enrollgate/pkg/domain-errors"
)

// parseListFilter reads include_expired, state, urgency and sort.
func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	var filter models.ListFilter

	if raw := q.Get("include_expired"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeValidation, "include_expired must be a boolean")
		}
		filter.IncludeExpired = v
	}
	if raw := q.Get("state"); raw != "" {
		state, ok := models.ParseState(raw)
		if !ok {
			return filter, dErrors.New(dErrors.CodeValidation, "invalid state filter")
		}
		filter.State = state
	}
	if raw := q.Get("urgency"); raw != "" {
		u, ok := models.ParseUrgency(raw)
		if !ok {
			return filter, dErrors.New(dErrors.CodeValidation, "urgency must be one of normal, urgent, critical")
		}
		filter.MinUrgency = u
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("sort"))) {
	case "":
	case "expiry":
		filter.SortByExpiry = true
	default:
		return filter, dErrors.New(dErrors.CodeValidation, "sort must be expiry")
	}
	return filter, nil
}
