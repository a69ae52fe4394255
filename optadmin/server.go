// Package optadmin exposes an optrack.OpTracker over HTTP: JSON dump
// endpoints mirroring the admin-socket command set, and a server-sent-events
// stream of lifecycle events.
package optadmin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/justincmoy/optrack"
	"github.com/justincmoy/optrack/internal/optdebug"
	"github.com/justincmoy/optrack/internal/optpubsub"
)

// Server serves JSON dumps and a lifecycle event stream over a single
// optrack.OpTracker, the way trchttp.Server serves a single trc.Collector.
type Server struct {
	tracker *optrack.OpTracker
	broker  *optpubsub.Broker[optrack.LifecycleEvent]
	mux     *http.ServeMux
}

// NewServer returns a Server wrapping tracker. It installs itself as the
// tracker's lifecycle subscriber, so every register/unregister/warn event is
// available to the /lifecycle/stream endpoint.
func NewServer(tracker *optrack.OpTracker) *Server {
	s := &Server{
		tracker: tracker,
		broker:  optpubsub.NewBroker[optrack.LifecycleEvent](),
	}
	tracker.SetLifecycleSubscriber(lifecycleAdapter{broker: s.broker})

	mux := http.NewServeMux()
	mux.HandleFunc("/ops/in_flight", s.handleInFlight)
	mux.HandleFunc("/ops/historic", s.handleHistoric)
	mux.HandleFunc("/ops/historic_slow", s.handleHistoricSlow)
	mux.HandleFunc("/ops/histogram", s.handleHistogram)
	mux.HandleFunc("/ops/check", s.handleCheck)
	mux.HandleFunc("/lifecycle/stream", s.handleLifecycleStream)
	mux.HandleFunc("/debug/counters", s.handleDebugCounters)
	s.mux = mux

	return s
}

// lifecycleAdapter satisfies optrack's unexported lifecycleSubscriber
// interface (any type with a Publish(LifecycleEvent) method does), routing
// events into the broker that backs the SSE stream.
type lifecycleAdapter struct {
	broker *optpubsub.Broker[optrack.LifecycleEvent]
}

func (a lifecycleAdapter) Publish(ev optrack.LifecycleEvent) { a.broker.Publish(ev) }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin := time.Now()
	s.mux.ServeHTTP(w, r)
	logrus.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"duration": time.Since(begin),
	}).Info("optadmin: request")
}

func parseFilters(r *http.Request) []string {
	q := r.URL.Query().Get("filter")
	if q == "" {
		return nil
	}
	return strings.Split(q, ",")
}

func (s *Server) handleInFlight(w http.ResponseWriter, r *http.Request) {
	onlyBlocked := r.URL.Query().Has("only_blocked")
	e := optrack.NewJSONEmitter()
	if !s.tracker.DumpOpsInFlight(e, onlyBlocked, parseFilters(r)) {
		respondDisabled(w)
		return
	}
	respondJSON(w, e)
}

func (s *Server) handleHistoric(w http.ResponseWriter, r *http.Request) {
	byDuration := r.URL.Query().Has("by_duration")
	e := optrack.NewJSONEmitter()
	if !s.tracker.DumpHistoricOps(e, byDuration, parseFilters(r)) {
		respondDisabled(w)
		return
	}
	respondJSON(w, e)
}

func (s *Server) handleHistoricSlow(w http.ResponseWriter, r *http.Request) {
	e := optrack.NewJSONEmitter()
	if !s.tracker.DumpHistoricSlowOps(e, parseFilters(r)) {
		respondDisabled(w)
		return
	}
	respondJSON(w, e)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	h := s.tracker.GetAgeMsHistogram()
	e := optrack.NewJSONEmitter()
	e.OpenObject("")
	h.Dump(e, "age_ms_histogram")
	e.CloseSection()
	respondJSON(w, e)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	summary, warnings, numSlow, ok := s.tracker.CheckOpsInFlight()
	if !ok {
		respondDisabled(w)
		return
	}

	e := optrack.NewJSONEmitter()
	e.OpenObject("")
	e.DumpString("summary", summary)
	e.DumpInt("num_slow_ops", int64(numSlow))
	e.OpenArray("warnings")
	for _, w := range warnings {
		e.DumpString("", w)
	}
	e.CloseSection()
	e.CloseSection()
	respondJSON(w, e)
}

func (s *Server) handleDebugCounters(w http.ResponseWriter, r *http.Request) {
	registered, unregistered, evicted, evictedSlow, warned := optdebug.Global.Values()
	e := optrack.NewJSONEmitter()
	e.OpenObject("")
	e.DumpInt("registered", int64(registered))
	e.DumpInt("unregistered", int64(unregistered))
	e.DumpInt("evicted", int64(evicted))
	e.DumpInt("evicted_slow", int64(evictedSlow))
	e.DumpInt("warned", int64(warned))
	e.CloseSection()
	respondJSON(w, e)
}

func respondJSON(w http.ResponseWriter, e *optrack.JSONEmitter) {
	w.Header().Set("content-type", "application/json")
	w.Write(e.Bytes())
}

func respondDisabled(w http.ResponseWriter) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": "tracking disabled"})
}

func parseIntDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
