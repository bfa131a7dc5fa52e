package handlers

import (
	"context"
	"time"

	"github.com/gorilla/mux"

	"thumbnail-engine/internal/engine"
	"thumbnail-engine/internal/events"
	"thumbnail-engine/internal/generation"
	"thumbnail-engine/internal/maintenance"
	"thumbnail-engine/internal/preload"
)

// ThumbnailEngine is the part of the engine the handlers use.
type ThumbnailEngine interface {
	RequestThumbnails(ctx context.Context, dir string, active int, mode string, preloadCap int) (engine.Batch, error)
	Thumbnail(ctx context.Context, path string, size int) (generation.Result, error)
	Interrupt() preload.Summary
	Reload(ctx context.Context) (preload.Summary, error)
	CleanCache(ctx context.Context) (maintenance.Result, error)
	CleanCacheAsync(ctx context.Context) <-chan maintenance.Result
	EraseCache(ctx context.Context) error
	Report(ctx context.Context) (maintenance.Report, error)
	Status() engine.Status
}

type Handlers struct {
	engine      ThumbnailEngine
	broadcaster *events.Broadcaster
	startTime   time.Time
	// baseCtx outlives requests; background cleans run on it.
	baseCtx context.Context
}

// New returns handlers for eng publishing to b. Background work started by
// a request is bound to ctx rather than the request.
func New(ctx context.Context, eng ThumbnailEngine, b *events.Broadcaster) *Handlers {
	if b == nil {
		b = events.NewBroadcaster(0)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Handlers{
		engine:      eng,
		broadcaster: b,
		startTime:   time.Now(),
		baseCtx:     ctx,
	}
}

// RegisterRoutes adds every API route to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnails/request", h.RequestThumbnails).Methods("POST")
	api.HandleFunc("/thumbnails/events", h.StreamEvents).Methods("GET")
	api.HandleFunc("/thumbnails/interrupt", h.Interrupt).Methods("POST")
	api.HandleFunc("/thumbnails/reload", h.Reload).Methods("POST")
	api.HandleFunc("/thumbnails/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("GET")

	api.HandleFunc("/cache/clean", h.CleanCache).Methods("POST")
	api.HandleFunc("/cache", h.EraseCache).Methods("DELETE")
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
}
