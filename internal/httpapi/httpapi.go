// Package httpapi is the minimal HTTP surface named in SPEC_FULL.md
// §4.11: a /healthz liveness probe and the Prometheus /metrics handler,
// enough to exercise the "HTTP API... specified only by the interface it
// consumes from the core" collaborator from spec.md §1.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hessdev-de/energy2mqtt/pkg/log"
)

// Server is a thin gorilla/mux router plus the net/http.Server it drives.
type Server struct {
	router *mux.Router
	http   *http.Server
	start  time.Time
}

// New builds a Server listening on addr. It does not start listening
// until Start is called.
func New(addr string) *Server {
	r := mux.NewRouter()
	s := &Server{router: r, start: time.Now()}

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start runs ListenAndServe in a goroutine, logging an error should the
// listener itself fail to bind; the process keeps running.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("httpapi: listener failed: %v", err)
		}
	}()
}

func (s *Server) Shutdown() error {
	return s.http.Close()
}
