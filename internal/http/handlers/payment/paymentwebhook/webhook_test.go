package paymentwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconciler"
	"github.com/magabrotheeeer/entitlement-service/internal/storage"
)

type ReconcilerMock struct {
	mock.Mock
}

func (m *ReconcilerMock) Verify(payload []byte, sigHeader string) (*models.Event, error) {
	args := m.Called(payload, sigHeader)
	event, _ := args.Get(0).(*models.Event)
	return event, args.Error(1)
}

func (m *ReconcilerMock) Apply(ctx context.Context, event *models.Event) (*reconciler.Outcome, error) {
	args := m.Called(ctx, event)
	outcome, _ := args.Get(0).(*reconciler.Outcome)
	return outcome, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishStatusChange(ctx context.Context, change models.StatusChange) error {
	return m.Called(ctx, change).Error(0)
}

type testEnv struct {
	handler   *Handler
	rec       *ReconcilerMock
	publisher *PublisherMock
	metrics   *metrics.Metrics
	redis     *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	events, err := cache.InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr(), EventTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	env := &testEnv{
		rec:       new(ReconcilerMock),
		publisher: new(PublisherMock),
		metrics:   metrics.New(prometheus.NewRegistry()),
		redis:     mr,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.handler = New(log, env.rec, events, env.publisher, env.metrics)
	return env
}

func (e *testEnv) post(body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) counter(eventType, outcome string) float64 {
	return testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues(eventType, outcome))
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var got struct {
		Data struct {
			Received bool   `json:"received"`
			Result   string `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Data.Received)
	return got.Data.Result
}

var subEvent = &models.Event{ID: "evt_1", Type: models.EventSubscriptionCreated}

func TestWebhook_AppliedAndPublished(t *testing.T) {
	env := newTestEnv(t)
	change := models.StatusChange{UserID: "user-1", Previous: models.StatusInactive, Current: models.StatusActive}

	env.rec.On("Verify", []byte("payload"), "sig").Return(subEvent, nil).Once()
	env.rec.On("Apply", mock.Anything, subEvent).
		Return(&reconciler.Outcome{EventID: "evt_1", Result: reconciler.ResultApplied, Changes: []models.StatusChange{change}}, nil).Once()
	env.publisher.On("PublishStatusChange", mock.Anything, change).Return(errors.New("broker down")).Once()

	rec := env.post("payload", "sig")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reconciler.ResultApplied, decodeResult(t, rec))
	assert.True(t, env.redis.Exists("webhook:event:evt_1"))
	assert.Equal(t, 1.0, env.counter(models.EventSubscriptionCreated, metrics.OutcomeApplied))
	env.rec.AssertExpectations(t)
	env.publisher.AssertExpectations(t)
}

func TestWebhook_DuplicateSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.redis.Set("webhook:event:evt_1", "2030-01-01T00:00:00Z"))

	env.rec.On("Verify", []byte("payload"), "sig").Return(subEvent, nil).Once()

	rec := env.post("payload", "sig")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, metrics.OutcomeDuplicate, decodeResult(t, rec))
	env.rec.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, env.counter(models.EventSubscriptionCreated, metrics.OutcomeDuplicate))
}

func TestWebhook_CacheDownStillProcesses(t *testing.T) {
	env := newTestEnv(t)
	env.redis.SetError("redis is down")

	env.rec.On("Verify", []byte("payload"), "sig").Return(subEvent, nil).Once()
	env.rec.On("Apply", mock.Anything, subEvent).
		Return(&reconciler.Outcome{Result: reconciler.ResultDeferred}, nil).Once()

	rec := env.post("payload", "sig")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reconciler.ResultDeferred, decodeResult(t, rec))
	env.rec.AssertExpectations(t)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		verifyErr   error
		applyErr    error
		wantStatus  int
		wantOutcome string
		wantMarked  bool
	}{
		{
			name:        "forged signature",
			verifyErr:   fmt.Errorf("reconciler.Verify: %w", reconciler.ErrAuthenticity),
			wantStatus:  http.StatusBadRequest,
			wantOutcome: metrics.OutcomeRejected,
		},
		{
			name:        "signed but malformed",
			verifyErr:   fmt.Errorf("reconciler.Verify: %w", reconciler.ErrMalformedEvent),
			wantStatus:  http.StatusOK,
			wantOutcome: metrics.OutcomeDropped,
		},
		{
			name:        "unknown user",
			applyErr:    fmt.Errorf("reconciler.Apply: %w", storage.ErrReferential),
			wantStatus:  http.StatusOK,
			wantOutcome: metrics.OutcomeDropped,
			wantMarked:  true,
		},
		{
			name:        "storage unavailable",
			applyErr:    fmt.Errorf("reconciler.Apply: %w", storage.ErrUnavailable),
			wantStatus:  http.StatusServiceUnavailable,
			wantOutcome: metrics.OutcomeFailed,
		},
		{
			name:        "unexpected failure",
			applyErr:    errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantOutcome: metrics.OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			eventType := "unknown"
			if tt.verifyErr != nil {
				env.rec.On("Verify", []byte("payload"), "sig").Return(nil, tt.verifyErr).Once()
			} else {
				eventType = subEvent.Type
				env.rec.On("Verify", []byte("payload"), "sig").Return(subEvent, nil).Once()
				env.rec.On("Apply", mock.Anything, subEvent).Return(nil, tt.applyErr).Once()
			}

			rec := env.post("payload", "sig")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, 1.0, env.counter(eventType, tt.wantOutcome))
			assert.Equal(t, tt.wantMarked, env.redis.Exists("webhook:event:evt_1"))
			env.publisher.AssertNotCalled(t, "PublishStatusChange", mock.Anything, mock.Anything)
			env.rec.AssertExpectations(t)
		})
	}
}

func TestWebhook_WithoutOptionalDependencies(t *testing.T) {
	rec := new(ReconcilerMock)
	rec.On("Verify", []byte("payload"), "sig").Return(subEvent, nil).Once()
	rec.On("Apply", mock.Anything, subEvent).Return(&reconciler.Outcome{
		Result:  reconciler.ResultApplied,
		Changes: []models.StatusChange{{UserID: "user-1", Current: models.StatusActive}},
	}, nil).Once()

	handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), rec, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("payload"))
	req.Header.Set(SignatureHeader, "sig")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rec.AssertExpectations(t)
}
