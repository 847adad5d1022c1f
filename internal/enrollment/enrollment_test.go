package enrollment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollgate/internal/completeness"
	"enrollgate/internal/requirements"
	"enrollgate/pkg/platform/circuit"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/testutil"
)

func TestRESTClientFinalize(t *testing.T) {
	reg := testutil.NewRegistrationBuilder().
		WithDocuments(completeness.Refs{requirements.DocIdentity: "objects/id"}).
		Build()

	t.Run("posts the registration", func(t *testing.T) {
		var got FinalizeRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/enrollments", r.URL.Path)
			assert.Equal(t, "30111222", r.Header.Get("Idempotency-Key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		c := NewRESTClient(srv.URL, time.Second, nil)
		require.NoError(t, c.Finalize(context.Background(), reg))
		assert.Equal(t, "30111222", got.NationalID)
		assert.Equal(t, "Ana", got.Personal.FirstName)
		assert.Equal(t, map[string]string{"identity_document": "objects/id"}, got.Documents)
	})

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"conflict means already enrolled", http.StatusConflict, sentinel.ErrConflict},
		{"bad request is invalid input", http.StatusUnprocessableEntity, sentinel.ErrInvalidInput},
		{"server error is unavailable", http.StatusBadGateway, sentinel.ErrUnavailable},
		{"throttling is unavailable", http.StatusTooManyRequests, sentinel.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"x","message":"details"}`))
			}))
			defer srv.Close()

			err := NewRESTClient(srv.URL, time.Second, nil).Finalize(context.Background(), reg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("timeout is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		err := NewRESTClient(srv.URL, 20*time.Millisecond, nil).Finalize(context.Background(), reg)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("unreachable store is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := NewRESTClient(url, time.Second, nil).Finalize(context.Background(), reg)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestRESTClientBreaker(t *testing.T) {
	reg := testutil.NewRegistrationBuilder().Build()
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	now := testutil.T0
	b := circuit.New("enrollment",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	c := NewRESTClient(srv.URL, time.Second, nil, WithBreaker(b))
	ctx := context.Background()

	require.ErrorIs(t, c.Finalize(ctx, reg), sentinel.ErrUnavailable)
	require.ErrorIs(t, c.Finalize(ctx, reg), sentinel.ErrUnavailable)
	require.Equal(t, circuit.StateOpen, b.State())

	err := c.Finalize(ctx, reg)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	require.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, int32(2), calls.Load(), "open circuit does not reach the store")

	// A conflict is an answer from the store, so the trial call closes the circuit.
	now = now.Add(time.Minute)
	status.Store(http.StatusConflict)
	require.ErrorIs(t, c.Finalize(ctx, reg), sentinel.ErrConflict)
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.Equal(t, int32(3), calls.Load())
}

func TestMemoryStoreFinalize(t *testing.T) {
	s := NewMemoryStore()
	reg := testutil.NewRegistrationBuilder().Build()

	require.NoError(t, s.Finalize(context.Background(), reg))
	require.ErrorIs(t, s.Finalize(context.Background(), reg), sentinel.ErrConflict)

	got, err := s.Get(context.Background(), reg.NationalID)
	require.NoError(t, err)
	assert.Equal(t, reg.Personal, got.Personal)

	_, err = s.Get(context.Background(), "99999999")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
