// Package adminhttp exposes a small operator HTTP surface: an
// unauthenticated version/status endpoint and a password-gated terminate
// command, mirroring the teacher's own internal/rest admin split without
// exposing wallet endpoints (those are a separate external surface).
// Built directly on net/http's ServeMux, following the teacher's own
// mountHandlers pattern of a plain http.HandleFunc per endpoint gated by
// a Pw header check, since no example repo in the pack reaches for an
// HTTP router library.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
)

// StatusFn returns a point-in-time snapshot of node state for the /status
// endpoint; kept as a func rather than a direct *node.Node dependency so
// this package never imports internal/node.
type StatusFn func() any

// Params configures the admin server.
type Params struct {
	Addr     string
	Password string
	Enabled  bool
	Version  string
}

// Server is the operator-facing HTTP surface.
type Server struct {
	params Params
	bus    *eventbus.Bus
	status StatusFn
	log    zerolog.Logger
	mux    *http.ServeMux
}

// New builds a Server. Call Run to start serving. gatherer is the
// prometheus registry to expose at /metrics; nil disables the endpoint.
func New(params Params, bus *eventbus.Bus, status StatusFn, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{params: params, bus: bus, status: status, log: log, mux: http.NewServeMux()}
	s.mount(gatherer)
	return s
}

func (s *Server) mount(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("/version", s.pickMethod(false, map[string]http.HandlerFunc{
		"GET": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]string{"version": s.params.Version})
		},
	}))

	s.mux.HandleFunc("/status", s.pickMethod(false, map[string]http.HandlerFunc{
		"GET": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, s.status())
		},
	}))

	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if !s.params.Enabled {
		return
	}
	s.mux.HandleFunc("/admin/terminate", s.pickMethod(true, map[string]http.HandlerFunc{
		"POST": func(w http.ResponseWriter, r *http.Request) {
			s.bus.Terminate.Pub(eventbus.TerminateCommand{Reason: "admin requested"})
			w.WriteHeader(http.StatusAccepted)
		},
	}))
}

// pickMethod dispatches to the handler registered for the request's method,
// gating admin-only endpoints behind the configured password header.
func (s *Server) pickMethod(admin bool, handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if admin && s.params.Password != "" && r.Header.Get("Pw") != s.params.Password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler, ok := handlers[r.Method]
		if !ok {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Run blocks serving admin HTTP on params.Addr until the listener fails.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.params.Addr).Msg("admin http listening")
	return http.ListenAndServe(s.params.Addr, s.mux)
}
