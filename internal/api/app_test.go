package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatstack/go-chathub/internal/config"
	"github.com/chatstack/go-chathub/internal/rpc"
	"github.com/chatstack/go-chathub/internal/testutil"
)

func Test_Healthz(t *testing.T) {
	t.Run("no monitored services reports ok", func(t *testing.T) {
		app := &ChatApp{
			log:    testutil.TestLogger(t),
			health: rpc.NewHealthMonitor(testutil.TestLogger(t), time.Hour, time.Second),
		}

		rr := httptest.NewRecorder()
		app.healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp healthzResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Empty(t, resp.Services)
	})

	t.Run("unreachable service reports degraded", func(t *testing.T) {
		logger := testutil.TestLogger(t)
		client := rpc.NewClient("auth-service", "127.0.0.1:1", rpc.NewBreaker(rpc.BreakerOptions{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			CallTimeout:      time.Second,
			ResetTimeout:     time.Minute,
		}), logger)

		monitor := rpc.NewHealthMonitor(logger, time.Hour, time.Second, client)
		go monitor.Run()
		defer monitor.Stop()

		app := &ChatApp{log: logger, health: monitor}

		// The initial probe runs as Run starts.
		assert.Eventually(t, func() bool {
			rr := httptest.NewRecorder()
			app.healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			return rr.Code == http.StatusServiceUnavailable
		}, 2*time.Second, 20*time.Millisecond)

		rr := httptest.NewRecorder()
		app.healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		var resp healthzResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "degraded", resp.Status)
		if assert.Contains(t, resp.Services, "auth-service") {
			assert.False(t, resp.Services["auth-service"].Healthy)
			assert.NotEmpty(t, resp.Services["auth-service"].Err)
		}
	})
}

func Test_ErrorHandlerRecoversPanics(t *testing.T) {
	app := &ChatApp{log: testutil.TestLogger(t)}

	h := app.errorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal server error")
}

func Test_NewChatAppRoutes(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)

	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		AllowedOrigins: []string{"*"},
	}

	app := NewChatApp(mux, logger, nil, rpc.NewHealthMonitor(logger, time.Hour, time.Second), cfg)

	rr := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
