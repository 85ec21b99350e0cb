// Package httpapi exposes the value store over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RevisionHeader carries the store revision after a read or write.
const RevisionHeader = "X-Revision"

const maxBodyBytes = 1 << 20

// Store is the value store served by the API. *store.Store satisfies it.
type Store interface {
	Get(key string) (string, bool)
	Values(keys ...string) map[string]string
	SetValue(key, value string)
	Delete(key string)
}

// Revisioner reports the current store revision.
type Revisioner interface {
	Current() uint64
}

// RequestObserver records completed requests.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Option configures the handler returned by NewMux.
type Option func(*server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *server) {
		s.logger = l
	}
}

// WithRevision sets the source of the X-Revision header.
func WithRevision(r Revisioner) Option {
	return func(s *server) {
		s.revision = r
	}
}

// WithRequestObserver records every request, e.g. into Prometheus.
func WithRequestObserver(o RequestObserver) Option {
	return func(s *server) {
		s.requests = o
	}
}

// WithCORS allows cross-origin requests from origins. "*" allows any.
func WithCORS(origins ...string) Option {
	return func(s *server) {
		s.corsOrigins = append([]string(nil), origins...)
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *server) {
		s.gatherer = g
	}
}

type server struct {
	store    Store
	revision Revisioner
	requests RequestObserver
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	corsOrigins []string
}

type valueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type putRequest struct {
	Value *string `json:"value"`
}

// NewMux returns the API handler.
func NewMux(st Store, opts ...Option) http.Handler {
	s := &server{
		store:  st,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{RevisionHeader},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/values", func(r chi.Router) {
		r.Get("/", s.listValues)
		r.Get("/{key}", s.getValue)
		r.Put("/{key}", s.putValue)
		r.Delete("/{key}", s.deleteValue)
	})

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *server) listValues(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if q := r.URL.Query().Get("keys"); q != "" {
		keys = strings.Split(q, ",")
	}
	s.writeJSON(w, http.StatusOK, s.store.Values(keys...))
}

func (s *server) getValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok := s.store.Get(key)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: v})
}

func (s *server) putValue(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeJSONError(w, http.StatusBadRequest, "value is required")
		return
	}

	key := chi.URLParam(r, "key")
	s.store.SetValue(key, *req.Value)
	s.writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: *req.Value})
}

func (s *server) deleteValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.store.Get(key); !ok {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	s.store.Delete(key)
	s.setRevision(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	s.setRevision(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("encode response")
	}
}

func (s *server) setRevision(w http.ResponseWriter) {
	if s.revision != nil {
		w.Header().Set(RevisionHeader, strconv.FormatUint(s.revision.Current(), 10))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
		"code":  status,
	})
}
