// Package httpapi exposes a statecache client over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soroban-registry/statecache"
	"github.com/soroban-registry/statecache/internal/fetch"
	"github.com/soroban-registry/statecache/internal/ledger"
)

// DefaultMaxBodyBytes bounds state write payloads.
const DefaultMaxBodyBytes = 1 << 20

// Server routes HTTP requests to a statecache client.
type Server struct {
	client   *statecache.Client
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	maxBody  int64
	started  time.Time

	mux     *http.ServeMux
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer sets the registry served on /metrics. Without it /metrics
// serves the default Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMaxBodyBytes bounds the size of state write payloads.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New creates a Server for client.
func New(client *statecache.Client, opts ...Option) *Server {
	s := &Server{
		client:   client,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
		maxBody:  DefaultMaxBodyBytes,
		started:  time.Now(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")

	api := func(h http.HandlerFunc) http.Handler { return s.admit(h) }

	s.mux.Handle("GET /api/contracts/{id}/state/{key}", api(s.handleRead))
	s.mux.Handle("POST /api/contracts/{id}/state/{key}", api(s.handleWrite))
	s.mux.Handle("GET /api/contracts/{id}/resources", api(s.handleResources))
	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/", s.handleNotFound)

	s.handler = s.requestID(s.logRequests(s.mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	useCache := r.URL.Query().Get("cache") == "on"

	v, err := s.client.Read(r.Context(), r.PathValue("id"), r.PathValue("key"), useCache)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if json.Valid(v) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v)
}

type writeResponse struct {
	Status          string `json:"status"`
	Invalidated     bool   `json:"invalidated"`
	CPUInstructions int64  `json:"cpu_instructions"`
	MemBytes        int64  `json:"mem_bytes"`
	StorageBytes    int64  `json:"storage_bytes"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{"PayloadTooLarge", err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{"InvalidBody", err.Error()})
		return
	}

	// Payloads are metered by their compact JSON size.
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"InvalidJson", err.Error()})
		return
	}

	sample, err := s.client.Write(r.Context(), r.PathValue("id"), r.PathValue("key"), compact.Bytes())
	if err != nil && sample.ContractID == "" {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Warn("write applied but not metered", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, writeResponse{
		Status:          "updated",
		Invalidated:     true,
		CPUInstructions: sample.CPUInstructions,
		MemBytes:        sample.MemBytes,
		StorageBytes:    sample.StorageBytes,
	})
}

type resourceTotals struct {
	CPUInstructions int64 `json:"cpu_instructions"`
	MemBytes        int64 `json:"mem_bytes"`
	StorageBytes    int64 `json:"storage_bytes"`
}

type resourceAverages struct {
	CPUInstructions float64 `json:"cpu_instructions"`
	MemBytes        float64 `json:"mem_bytes"`
	StorageBytes    float64 `json:"storage_bytes"`
}

type resourceSample struct {
	CPUInstructions int64     `json:"cpu_instructions"`
	MemBytes        int64     `json:"mem_bytes"`
	StorageBytes    int64     `json:"storage_bytes"`
	Timestamp       time.Time `json:"timestamp"`
}

type resourcesResponse struct {
	ContractID    string           `json:"contract_id"`
	Count         int64            `json:"count"`
	Totals        resourceTotals   `json:"totals"`
	Averages      resourceAverages `json:"averages"`
	Max           resourceTotals   `json:"max"`
	FirstRecorded *time.Time       `json:"first_recorded,omitempty"`
	LastRecorded  *time.Time       `json:"last_recorded,omitempty"`
	Recent        []resourceSample `json:"recent"`
}

const recentSamples = 20

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	agg := s.client.Resources(id)

	resp := resourcesResponse{
		ContractID: id,
		Count:      agg.Count,
		Totals:     resourceTotals{agg.TotalCPUInstructions, agg.TotalMemBytes, agg.TotalStorageBytes},
		Averages:   resourceAverages{agg.AvgCPUInstructions, agg.AvgMemBytes, agg.AvgStorageBytes},
		Max:        resourceTotals{agg.MaxCPUInstructions, agg.MaxMemBytes, agg.MaxStorageBytes},
		Recent:     recent(s.client.RecentSamples(id, recentSamples)),
	}
	if agg.Count > 0 {
		resp.FirstRecorded = &agg.FirstRecorded
		resp.LastRecorded = &agg.LastRecorded
	}
	writeJSON(w, http.StatusOK, resp)
}

func recent(samples []ledger.Sample) []resourceSample {
	out := make([]resourceSample, len(samples))
	for i, s := range samples {
		out[i] = resourceSample{s.CPUInstructions, s.MemBytes, s.StorageBytes, s.Timestamp}
	}
	return out
}

type cacheMetrics struct {
	HitRatePercent        float64 `json:"hit_rate_percent"`
	AvgCachedHitLatencyUs float64 `json:"avg_cached_hit_latency_us"`
	AvgCacheMissLatencyUs float64 `json:"avg_cache_miss_latency_us"`
	AvgUncachedLatencyUs  float64 `json:"avg_uncached_latency_us"`
	ImprovementFactor     float64 `json:"improvement_factor"`
	Hits                  int64   `json:"hits"`
	Misses                int64   `json:"misses"`
	Uncached              int64   `json:"uncached"`
	FetchErrors           int64   `json:"fetch_errors"`
	Entries               int     `json:"entries"`
	Evictions             int64   `json:"evictions"`
	Expirations           int64   `json:"expirations"`
	MeteredWrites         int64   `json:"metered_writes"`
}

type cacheConfig struct {
	Enabled     bool  `json:"enabled"`
	TTLSeconds  int64 `json:"ttl_seconds"`
	MaxCapacity int   `json:"max_capacity"`
}

type cacheStatsResponse struct {
	Metrics cacheMetrics `json:"metrics"`
	Config  cacheConfig  `json:"config"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := s.client.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Metrics: cacheMetrics{
			HitRatePercent:        st.HitRate * 100,
			AvgCachedHitLatencyUs: st.AvgCachedHitLatencyUs,
			AvgCacheMissLatencyUs: st.AvgCacheMissLatencyUs,
			AvgUncachedLatencyUs:  st.AvgUncachedLatencyUs,
			ImprovementFactor:     st.ImprovementFactor,
			Hits:                  st.Hits,
			Misses:                st.Misses,
			Uncached:              st.Uncached,
			FetchErrors:           st.FetchErrors,
			Entries:               st.Entries,
			Evictions:             st.Evictions,
			Expirations:           st.Expirations,
			MeteredWrites:         st.MeteredWrites,
		},
		Config: cacheConfig{
			Enabled:     st.Enabled,
			TTLSeconds:  st.TTLSeconds,
			MaxCapacity: st.MaxCapacity,
		},
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	State      string `json:"state"`
	InFlight   int64  `json:"in_flight"`
	Timestamp  string `json:"timestamp"`
	UptimeSecs int64  `json:"uptime_secs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.client.Stats()
	resp := healthResponse{
		Status:     "ok",
		State:      st.State,
		InFlight:   st.InFlight,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		UptimeSecs: int64(time.Since(s.started) / time.Second),
	}
	code := http.StatusOK
	if !s.client.Accepting() {
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, apiError{"RouteNotFound", "The requested endpoint does not exist"})
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, name := classify(err)
	if code >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	writeJSON(w, code, apiError{name, err.Error()})
}

func classify(err error) (int, string) {
	var fe *statecache.FetchError
	switch {
	case errors.Is(err, statecache.ErrInvalidKey):
		return http.StatusBadRequest, "InvalidKey"
	case errors.Is(err, statecache.ErrShuttingDown), errors.Is(err, statecache.ErrClosed):
		return http.StatusServiceUnavailable, "ShuttingDown"
	case errors.Is(err, fetch.ErrNotFound):
		return http.StatusNotFound, "StateNotFound"
	case errors.As(err, &fe):
		return http.StatusBadGateway, "FetchFailed"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
