package handlers

import (
	"errors"
	"net/http"

	"thumbnail-engine/internal/events"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/maintenance"
)

// CleanResponse is returned by POST /api/cache/clean.
type CleanResponse struct {
	Status  string  `json:"status"`
	Scanned int     `json:"scanned,omitempty"`
	Removed int     `json:"removed,omitempty"`
	Errors  int     `json:"errors,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
	Message string  `json:"message,omitempty"`
}

func cleanResponse(res maintenance.Result) CleanResponse {
	return CleanResponse{
		Status:  "completed",
		Scanned: res.Scanned,
		Removed: res.Removed,
		Errors:  res.Errors,
		Seconds: res.Duration.Seconds(),
	}
}

// CleanCache removes obsolete entries. With wait=true it responds when the
// clean is done; otherwise it starts one in the background and the result
// is published on the event stream.
func (h *Handlers) CleanCache(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		res, err := h.engine.CleanCache(r.Context())
		switch {
		case errors.Is(err, maintenance.ErrBusy):
			writeJSONResponse(w, http.StatusConflict, CleanResponse{
				Status:  "already_running",
				Message: "Cache cleaning is already in progress",
			})
		case err != nil:
			logging.Error("CleanCache: %v", err)
			writeJSONError(w, "Failed to clean cache", http.StatusInternalServerError)
		default:
			writeJSONResponse(w, http.StatusOK, cleanResponse(res))
		}
		return
	}

	done := h.engine.CleanCacheAsync(h.baseCtx)
	select {
	case res := <-done:
		// Finished (or refused) before we could respond
		if errors.Is(res.Err, maintenance.ErrBusy) {
			writeJSONResponse(w, http.StatusConflict, CleanResponse{
				Status:  "already_running",
				Message: "Cache cleaning is already in progress",
			})
			return
		}
		h.publishClean(res)
		writeJSONResponse(w, http.StatusOK, cleanResponse(res))
		return
	default:
	}

	go func() {
		if res, ok := <-done; ok {
			h.publishClean(res)
		}
	}()

	writeJSONResponse(w, http.StatusAccepted, CleanResponse{
		Status:  "started",
		Message: "Cache cleaning started",
	})
}

func (h *Handlers) publishClean(res maintenance.Result) {
	ev := events.Event{Type: events.EventClean, Data: cleanResponse(res)}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	h.broadcaster.Publish(ev)
}

// EraseCache removes every cache entry. The request must carry confirm=true.
func (h *Handlers) EraseCache(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSONError(w, "Erasing the cache requires confirm=true", http.StatusBadRequest)
		return
	}

	err := h.engine.EraseCache(r.Context())
	switch {
	case errors.Is(err, maintenance.ErrBusy):
		writeJSONError(w, "Cache maintenance is in progress", http.StatusConflict)
	case err != nil:
		logging.Error("EraseCache: %v", err)
		writeJSONError(w, "Failed to erase cache", http.StatusInternalServerError)
	default:
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "erased"})
	}
}

// GetCacheStats returns the cache size and entry count.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Report(r.Context())
	if err != nil {
		logging.Error("GetCacheStats: %v", err)
		writeJSONError(w, "Failed to read cache statistics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, http.StatusOK, report)
}
