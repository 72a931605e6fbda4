package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness is always OK", func(t *testing.T) {
		srv := New(Config{})
		body := getHealth(t, srv, "/healthz/live", http.StatusOK)
		assert.Equal(t, "OK", body["status"])
	})

	t.Run("not ready until SetReady", func(t *testing.T) {
		srv := New(Config{})
		body := getHealth(t, srv, "/healthz/ready", http.StatusServiceUnavailable)
		assert.Equal(t, "NOT_SERVING", body["status"])
		assert.Equal(t, healthServices[0], body["service"])

		srv.SetReady()
		body = getHealth(t, srv, "/healthz/ready", http.StatusOK)
		assert.Equal(t, "SERVING", body["status"])
	})

	t.Run("reports the failing service", func(t *testing.T) {
		for _, failing := range healthServices {
			t.Run(failing, func(t *testing.T) {
				srv := New(Config{})
				srv.SetReady()
				srv.healthServer.SetServingStatus(failing, healthpb.HealthCheckResponse_NOT_SERVING)

				body := getHealth(t, srv, "/healthz/ready", http.StatusServiceUnavailable)
				assert.Equal(t, failing, body["service"])
			})
		}
	})

	t.Run("SetNotReady drains", func(t *testing.T) {
		srv := New(Config{})
		srv.SetReady()
		srv.SetNotReady()

		body := getHealth(t, srv, "/healthz/ready", http.StatusServiceUnavailable)
		assert.Equal(t, "NOT_SERVING", body["status"])
	})

	t.Run("not ready after shutdown", func(t *testing.T) {
		srv := New(Config{})
		srv.SetReady()
		srv.healthServer.Shutdown()

		body := getHealth(t, srv, "/healthz/ready", http.StatusServiceUnavailable)
		assert.Equal(t, "NOT_SERVING", body["status"])
	})
}

// getHealth requests path through the server's routes and decodes the JSON body
func getHealth(t *testing.T, srv *Server, path string, wantCode int) map[string]string {
	t.Helper()
	handler, err := srv.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, wantCode, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}
