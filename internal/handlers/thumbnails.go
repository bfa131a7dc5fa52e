package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/engine"
	"thumbnail-engine/internal/events"
	"thumbnail-engine/internal/generation"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/mediatypes"
	"thumbnail-engine/internal/preload"
)

// maxRequestBody limits JSON request bodies.
const maxRequestBody = 64 << 10

// ThumbnailRequest is the body of POST /api/thumbnails/request.
type ThumbnailRequest struct {
	Dir    string `json:"dir"`
	Active int    `json:"active"`
	Mode   string `json:"mode,omitempty"`
	Cap    int    `json:"cap,omitempty"`
}

// ThumbnailURL returns the API URL serving the thumbnail of path.
func ThumbnailURL(path string, size int) string {
	q := url.Values{}
	q.Set("path", path)
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	return "/api/thumbnail?" + q.Encode()
}

// DeliverySink returns an engine sink publishing each delivery to b.
func DeliverySink(b *events.Broadcaster) func(engine.Delivery) {
	return func(d engine.Delivery) {
		ev := events.Event{
			Type:        events.EventThumbnail,
			Path:        d.Path,
			Ordinal:     d.Ordinal,
			Epoch:       d.Epoch,
			Status:      d.Status,
			Width:       d.Width,
			Height:      d.Height,
			Placeholder: d.Placeholder,
			Error:       d.Error,
		}
		if !d.Placeholder {
			ev.URL = ThumbnailURL(d.Path, d.Size)
		}
		b.Publish(ev)
	}
}

// RequestThumbnails lists a directory and starts preloading its thumbnails.
// Deliveries arrive on the event stream.
func (h *Handlers) RequestThumbnails(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Dir == "" || !filepath.IsAbs(req.Dir) {
		writeJSONError(w, "dir must be an absolute path", http.StatusBadRequest)
		return
	}
	if req.Mode != "" {
		if _, err := preload.ParseMode(req.Mode); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	batch, err := h.engine.RequestThumbnails(r.Context(), filepath.Clean(req.Dir), req.Active, req.Mode, req.Cap)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, "Directory not found", http.StatusNotFound)
			return
		}
		logging.Error("RequestThumbnails: %s: %v", req.Dir, err)
		writeJSONError(w, "Failed to list directory", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, batch)
}

// GetThumbnail generates or loads one thumbnail and returns the image.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || !filepath.IsAbs(path) {
		writeJSONError(w, "path must be an absolute path", http.StatusBadRequest)
		return
	}
	path = filepath.Clean(path)

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	res, err := h.engine.Thumbnail(r.Context(), path, size)
	if err != nil {
		h.thumbnailError(w, r, path, err)
		return
	}

	data, format, err := res.Bytes()
	if err != nil {
		logging.Error("Thumbnail: failed to encode %s: %v", path, err)
		writeJSONError(w, "Failed to encode thumbnail", http.StatusInternalServerError)
		return
	}

	logging.Debug("Thumbnail: %s for %s (%d bytes)", res.Status, path, len(data))

	w.Header().Set("Content-Type", mediatypes.FormatMimeType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Header().Set("X-Thumbnail-Status", res.Status.String())
	if res.Fingerprint.Path != "" {
		w.Header().Set("ETag", fmt.Sprintf(`"%d-%d-%d"`, res.Fingerprint.Size, res.Fingerprint.ModTime, res.Request.Size))
	}
	if _, err := w.Write(data); err != nil {
		logging.Debug("Thumbnail: write failed for %s: %v", path, err)
	}
}

func (h *Handlers) thumbnailError(w http.ResponseWriter, r *http.Request, path string, err error) {
	switch {
	case errors.Is(err, engine.ErrDisabled):
		writeJSONError(w, "Thumbnails disabled", http.StatusServiceUnavailable)
	case errors.Is(err, fs.ErrNotExist):
		writeJSONError(w, "File not found", http.StatusNotFound)
	case errors.Is(err, decoder.ErrUnsupported), decoder.IsDecodeError(err):
		writeJSONResponse(w, http.StatusUnsupportedMediaType, map[string]any{
			"error":       err.Error(),
			"placeholder": true,
		})
	case errors.Is(err, generation.ErrCancelled), errors.Is(err, context.Canceled):
		if r.Context().Err() != nil {
			// Client went away
			return
		}
		writeJSONError(w, "Thumbnail request cancelled", http.StatusConflict)
	default:
		logging.Error("Thumbnail: generation failed for %s: %v", path, err)
		writeJSONError(w, "Failed to generate thumbnail", http.StatusInternalServerError)
	}
}

// Interrupt cancels all outstanding thumbnail creation.
func (h *Handlers) Interrupt(w http.ResponseWriter, _ *http.Request) {
	sum := h.engine.Interrupt()
	h.broadcaster.Publish(events.Event{Type: events.EventInterrupt, Epoch: sum.Epoch, Data: sum})
	writeJSONResponse(w, http.StatusOK, sum)
}

// Reload forgets delivered thumbnails and requests the current directory again.
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.Reload(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.broadcaster.Publish(events.Event{Type: events.EventReload, Epoch: sum.Epoch, Data: sum})
	writeJSONResponse(w, http.StatusOK, sum)
}

// GetStatus returns the generation state.
func (h *Handlers) GetStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONResponse(w, http.StatusOK, h.engine.Status())
}

// StreamEvents streams deliveries and engine events as server-sent events.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.baseCtx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
