// Package api exposes the system's two outer surfaces: the HTTP server
// hosting the websocket endpoint and health checks, and the RPC handlers
// serving the chat.* message patterns.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/chatstack/go-chathub/internal/config"
	"github.com/chatstack/go-chathub/internal/rpc"
	"github.com/chatstack/go-chathub/internal/server"
)

type ChatApp struct {
	log     *log.Logger
	mux     *http.Server
	gateway *server.Gateway
	health  *rpc.HealthMonitor
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, gw *server.Gateway, monitor *rpc.HealthMonitor, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:     logger,
		gateway: gw,
		health:  monitor,
	}

	mux.HandleFunc("GET /ws", gw.ServeWS)
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

type healthzResponse struct {
	Status   string                       `json:"status"`
	Services map[string]rpc.ServiceStatus `json:"services"`
}

// healthz reports the last known state of every monitored backend. The
// endpoint returns 503 when any backend is unhealthy so load balancers
// can rotate a degraded gateway out.
func (s *ChatApp) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status:   "ok",
		Services: map[string]rpc.ServiceStatus{},
	}

	statusCode := http.StatusOK
	if s.health != nil {
		for _, st := range s.health.Snapshot() {
			resp.Services[st.Name] = st
			if !st.Healthy {
				resp.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}
	}

	s.writeJson(w, statusCode, resp)
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, http.StatusInternalServerError, map[string]string{
					"message": "internal server error",
				})
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}
