// Package relay is the webhook boundary: it accepts PMM collection events
// over HTTP, answers immediately, and hands the synchronization work to a
// background worker pool. All downstream failures are absorbed here; the
// only client-visible errors are malformed payloads.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
	"github.com/tssgery/pmm-dizquetv/internal/journal"
	"github.com/tssgery/pmm-dizquetv/internal/metrics"
	"github.com/tssgery/pmm-dizquetv/internal/safeurl"
)

// collectionPayload is the PMM webhook body. Fields beyond the ones the
// relay acts on are accepted and ignored so PMM template changes do not
// break the hook.
type collectionPayload struct {
	ServerName    string `json:"server_name"`
	LibraryName   string `json:"library_name"`
	Collection    string `json:"collection"`
	Playlist      string `json:"playlist"`
	Poster        string `json:"poster"`
	PosterURL     string `json:"poster_url"`
	Background    string `json:"background"`
	BackgroundURL string `json:"background_url"`
	Created       bool   `json:"created"`
	Deleted       bool   `json:"deleted"`
}

// Server owns the HTTP surface and the event queue.
type Server struct {
	Addr       string
	ConfigPath string
	Log        *zap.Logger
	Metrics    *metrics.Metrics
	Journal    *journal.Journal // nil when the journal is disabled

	Workers   int
	QueueSize int

	queue chan channelsync.Event

	mu        sync.RWMutex
	lastEvent time.Time
}

// Handler returns the HTTP surface, initializing the event queue. Exposed
// separately from Run so tests can drive the routes without a listener.
func (s *Server) Handler() http.Handler {
	if s.QueueSize <= 0 {
		s.QueueSize = 64
	}
	if s.queue == nil {
		s.queue = make(chan channelsync.Event, s.QueueSize)
	}

	r := mux.NewRouter()
	r.HandleFunc("/collection", s.handleCollection).Methods(http.MethodPost)
	r.HandleFunc("/collection/delete", s.handleCollectionDelete).Methods(http.MethodPost)
	r.HandleFunc("/run/start", s.runSignalHandler("Run started")).Methods(http.MethodPost)
	r.HandleFunc("/run/end", s.runSignalHandler("Run ended")).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Run starts the worker pool and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler := s.Handler()

	if s.Workers <= 0 {
		s.Workers = 2
	}
	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Log.Info("webhook listening", zap.String("addr", s.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		wg.Wait()
		return nil
	case err := <-errc:
		return err
	}
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	var p collectionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.reject(w, "malformed payload")
		return
	}
	if p.Collection == "" {
		s.Log.Error("collection event without a collection name")
		s.reject(w, "collection name is required")
		return
	}
	if p.PosterURL != "" && !safeurl.IsHTTPOrHTTPS(p.PosterURL) {
		s.Log.Warn("dropping poster with non-http url", zap.String("poster", p.PosterURL))
		p.PosterURL = ""
	}
	s.accept(w, channelsync.Event{
		ID:         uuid.NewString(),
		Library:    p.LibraryName,
		Collection: p.Collection,
		PosterURL:  p.PosterURL,
		Created:    p.Created,
		Deleted:    p.Deleted,
	})
}

// handleCollectionDelete is the companion hook for explicit out-of-band
// deletions; the payload carries only the library and collection names.
func (s *Server) handleCollectionDelete(w http.ResponseWriter, r *http.Request) {
	var p collectionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.reject(w, "malformed payload")
		return
	}
	if p.Collection == "" {
		s.Log.Error("delete event without a collection name")
		s.reject(w, "collection name is required")
		return
	}
	s.accept(w, channelsync.Event{
		ID:         uuid.NewString(),
		Library:    p.LibraryName,
		Collection: p.Collection,
		Deleted:    true,
	})
}

func (s *Server) accept(w http.ResponseWriter, ev channelsync.Event) {
	select {
	case s.queue <- ev:
	default:
		s.Log.Error("event queue full, dropping event",
			zap.String("collection", ev.Collection))
		s.Metrics.EventsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "queue full"})
		return
	}
	s.Metrics.QueueDepth.Set(float64(len(s.queue)))
	s.Log.Info("event accepted",
		zap.String("event", ev.ID),
		zap.String("library", ev.Library),
		zap.String("collection", ev.Collection),
		zap.Bool("created", ev.Created),
		zap.Bool("deleted", ev.Deleted))
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "event_id": ev.ID})
}

func (s *Server) reject(w http.ResponseWriter, msg string) {
	s.Metrics.EventsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// runSignalHandler forwards a PMM run boundary signal to the notification
// sink and confirms synchronously.
func (s *Server) runSignalHandler(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sink, _ := s.buildSink()
		sink.RunSignal(r.Context(), message)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.lastEvent
	s.mu.RUnlock()
	resp := map[string]any{
		"status":      "ok",
		"queue_depth": len(s.queue),
	}
	if !last.IsZero() {
		resp["last_event"] = last.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	entries, err := s.Journal.Recent(r.Context(), 50)
	if err != nil {
		s.Log.Error("journal query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
