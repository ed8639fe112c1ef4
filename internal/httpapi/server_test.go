package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

type fakeProvider struct{}

func (fakeProvider) Snapshot() []*model.ObjectRecord { return nil }
func (fakeProvider) Device() *model.DeviceConfig     { return nil }

func TestHandleHealth_AllUpReturns200(t *testing.T) {
	s := New("test", NewMetrics(), fakeProvider{}, []Checker{
		func() CheckStatus { return CheckStatus{Name: "cache", Up: true} },
	}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth_AnyDownReturns503(t *testing.T) {
	s := New("test", NewMetrics(), fakeProvider{}, []Checker{
		func() CheckStatus { return CheckStatus{Name: "cache", Up: false} },
	}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleLive_AlwaysOK(t *testing.T) {
	s := New("test", NewMetrics(), fakeProvider{}, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_PostMethodNotAllowed(t *testing.T) {
	s := New("test", NewMetrics(), fakeProvider{}, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint_ServesPrometheusExposition(t *testing.T) {
	s := New("test", NewMetrics(), fakeProvider{}, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bacnet_gateway_")
}
