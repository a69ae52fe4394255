package optadmin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bernerdschaefer/eventsource"

	"github.com/justincmoy/optrack"
)

// handleLifecycleStream streams register/unregister/warn events as
// server-sent events, the way trchttp.StreamServer streams trace events: an
// eventsource.Handler callback selecting between a periodic stats tick and
// incoming values on a per-request channel.
func (s *Server) handleLifecycleStream(w http.ResponseWriter, r *http.Request) {
	sendBuf := parseIntDefault(r.URL.Query().Get("sendbuf"), 100)
	if sendBuf < 0 {
		sendBuf = 0
	}
	if sendBuf > 100000 {
		sendBuf = 100000
	}

	eventc := make(chan optrack.LifecycleEvent, sendBuf)
	if err := s.broker.Subscribe(eventc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer s.broker.Unsubscribe(eventc)

	eventsource.Handler(func(lastID string, enc *eventsource.Encoder, stop <-chan bool) {
		initData, _ := json.Marshal(map[string]any{"sendbuf": sendBuf})
		enc.Encode(eventsource.Event{Type: "init", Data: initData})

		stats := time.NewTicker(10 * time.Second)
		defer stats.Stop()

		for {
			select {
			case ev := <-eventc:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				enc.Encode(eventsource.Event{Type: ev.Kind, Data: data})

			case <-stats.C:
				st, err := s.broker.Stats(eventc)
				if err != nil {
					continue
				}
				data, _ := json.Marshal(st)
				enc.Encode(eventsource.Event{Type: "stats", Data: data})

			case <-stop:
				return
			}
		}
	}).ServeHTTP(w, r)
}
