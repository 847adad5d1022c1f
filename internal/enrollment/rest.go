// Package enrollment adapts the permanent enrollment store. Finalize is the
// only write the pending lifecycle performs against it.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/platform/circuit"
	"enrollgate/pkg/platform/sentinel"
)

const finalizePath = "/enrollments"

// FinalizeRequest is the body posted to the enrollment store.
type FinalizeRequest struct {
	NationalID string              `json:"national_id"`
	Personal   models.PersonalData `json:"personal"`
	Documents  map[string]string   `json:"documents"`
	State      string              `json:"state"`
	CreatedAt  time.Time           `json:"pending_since"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RESTClient finalizes registrations over HTTP.
//
// 201/200 is success, 409 maps to sentinel.ErrConflict, 5xx and transport
// failures map to sentinel.ErrUnavailable. Requests are not retried here.
type RESTClient struct {
	http    *resty.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithBreaker short-circuits Finalize with ErrUnavailable while b is open.
// Only unavailable outcomes count as failures.
func WithBreaker(b *circuit.Breaker) RESTOption {
	return func(c *RESTClient) {
		c.breaker = b
	}
}

// NewRESTClient creates a client for baseURL with a per-request timeout.
func NewRESTClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...RESTOption) *RESTClient {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	c := &RESTClient{http: client, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func toRequest(reg *models.Registration) FinalizeRequest {
	docs := make(map[string]string, len(reg.Documents))
	for k, v := range reg.Documents {
		docs[string(k)] = string(v)
	}
	return FinalizeRequest{
		NationalID: string(reg.NationalID),
		Personal:   reg.Personal,
		Documents:  docs,
		State:      string(reg.State),
		CreatedAt:  reg.CreatedAt,
	}
}

func (c *RESTClient) Finalize(ctx context.Context, reg *models.Registration) error {
	if c.breaker == nil {
		return c.finalize(ctx, reg)
	}
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("finalize enrollment: %w: %w", sentinel.ErrUnavailable, err)
	}
	err := c.finalize(ctx, reg)
	if errors.Is(err, sentinel.ErrUnavailable) {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	return err
}

func (c *RESTClient) finalize(ctx context.Context, reg *models.Registration) error {
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", string(reg.NationalID)).
		SetBody(toRequest(reg)).
		SetError(&apiErr).
		Post(finalizePath)
	if err != nil {
		if isTransient(err) || ctx.Err() != nil {
			return fmt.Errorf("finalize enrollment: %w: %w", sentinel.ErrUnavailable, err)
		}
		return fmt.Errorf("finalize enrollment: %w", err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusOK || status == http.StatusCreated:
		c.logger.InfoContext(ctx, "enrollment finalized", "national_id_suffix", reg.NationalID.Suffix())
		return nil
	case status == http.StatusConflict:
		return fmt.Errorf("finalize enrollment: %w: %s", sentinel.ErrConflict, apiErr.Message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("finalize enrollment: %w: %s", sentinel.ErrInvalidInput, apiErr.Message)
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return fmt.Errorf("finalize enrollment: %w: status %d", sentinel.ErrUnavailable, status)
	default:
		return fmt.Errorf("finalize enrollment: unexpected status %d", status)
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr)
}
