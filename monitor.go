package rfboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mdouchement/logger"
)

// Handler serves the monitor API:
//
//	GET  /monitor  stream of Status as server-sent events
//	GET  /status   current Status
//	POST /limit    apply a LimitRequest
func (b *Board) Handler(log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /monitor", b.monitor(log))
	mux.HandleFunc("GET /status", b.status(log))
	mux.HandleFunc("POST /limit", b.limit(log))
	return mux
}

func (b *Board) eventLoop(ctx context.Context) {
	watchers := map[int64]chan<- []byte{}

	refresh := func() {
		if len(watchers) == 0 {
			return
		}

		payload, err := json.Marshal(b.Status())
		if err != nil {
			b.log.WithError(err).Error("Could not serialize status") // Should never happen
			return
		}

		for _, watcher := range watchers {
			select {
			case watcher <- payload:
			default:
				// Slow client, it gets the next one.
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			for id, watcher := range watchers {
				close(watcher)
				delete(watchers, id)
			}
			return
		case e := <-b.events:
			switch e.name {
			case eventRefreshWatchers:
				refresh()
			case eventWatch:
				watchers[e.monitorID] = e.monitor
				refresh()
			case eventUnwatch:
				if watcher, ok := watchers[e.monitorID]; ok {
					close(watcher)
					delete(watchers, e.monitorID)
				}
			}
		}
	}
}

// emit sends an event to the event loop unless the board is stopping.
func (b *Board) emit(e event) bool {
	select {
	case b.events <- e:
		return true
	case <-b.stopping:
		return false
	}
}

func (b *Board) monitor(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info("Client connected")

		// Set http headers required for SSE.
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		disconnected := r.Context().Done()

		id := genID()
		ch := make(chan []byte, 20)
		if !b.emit(event{name: eventWatch, monitorID: id, monitor: ch}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		rc := http.NewResponseController(w)
		for {
			select {
			case <-disconnected:
				log.Info("Client disconnected")
				b.emit(event{name: eventUnwatch, monitorID: id})
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}

				err := WriteSSE(w, payload)
				if err != nil {
					log.WithError(err).Error("Could not write monitor SSE payload")
					b.emit(event{name: eventUnwatch, monitorID: id})
					return
				}

				err = rc.Flush()
				if err != nil {
					log.WithError(err).Error("Could not flush monitor SSE payload")
					b.emit(event{name: eventUnwatch, monitorID: id})
					return
				}
			}
		}
	}
}

func (b *Board) status(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(b.Status()); err != nil {
			log.WithError(err).Error("Could not write status")
		}
	}
}

func (b *Board) limit(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LimitRequest

		codec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
		codec.DisallowUnknownFields()
		if err := codec.Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid limit request: "+err.Error(), http.StatusBadRequest)
			return
		}

		res := LimitResponse{
			Requested: req.Limit,
			Applied:   b.SetLimit(req.Limit),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.WithError(err).Error("Could not write limit response")
		}
	}
}
