package httpserver

import (
	"net/http"
	"sort"
	"strings"
)

// Routes groups handlers.
type Routes struct {
	Health          http.HandlerFunc
	Metrics         http.Handler
	Machines        http.HandlerFunc
	SelectionGet    http.HandlerFunc
	SelectionPut    http.HandlerFunc
	SelectionDelete http.HandlerFunc
	Snapshot        http.HandlerFunc
	MicrostopCreate http.HandlerFunc
	MicrostopUpdate http.HandlerFunc
	MicrostopDelete http.HandlerFunc
	StreamReconnect http.HandlerFunc
	DashboardSocket http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	if routes.Machines != nil {
		mux.Handle("/api/machines", method(http.MethodGet, routes.Machines))
	}
	mux.Handle("/api/selection", methods(map[string]http.HandlerFunc{
		http.MethodGet:    routes.SelectionGet,
		http.MethodPut:    routes.SelectionPut,
		http.MethodDelete: routes.SelectionDelete,
	}))
	if routes.Snapshot != nil {
		mux.Handle("/api/snapshot", method(http.MethodGet, routes.Snapshot))
	}
	if routes.MicrostopCreate != nil {
		mux.Handle("/api/microstops", method(http.MethodPost, routes.MicrostopCreate))
	}
	mux.Handle("/api/microstops/{id}", methods(map[string]http.HandlerFunc{
		http.MethodPut:    routes.MicrostopUpdate,
		http.MethodDelete: routes.MicrostopDelete,
	}))
	if routes.StreamReconnect != nil {
		mux.Handle("/api/stream/reconnect", method(http.MethodPost, routes.StreamReconnect))
	}
	if routes.DashboardSocket != nil {
		mux.Handle("/ws/dashboard", method(http.MethodGet, routes.DashboardSocket))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

// methods dispatches on r.Method; nil handlers are treated as not allowed.
func methods(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(handlers))
	for m, h := range handlers {
		if h != nil {
			allowed = append(allowed, m)
		}
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		handler := handlers[r.Method]
		if handler == nil {
			w.Header().Set("Allow", allow)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
