package generation

import (
	"errors"
	"image"

	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/fingerprint"
)

// ErrCancelled is the error carried by results with StatusCancelled.
var ErrCancelled = errors.New("thumbnail request cancelled")

// ErrClosed is returned for requests submitted after Close.
var ErrClosed = errors.New("generation pool closed")

// Priority orders queued requests; higher runs first.
type Priority int

const (
	PriorityBackground Priority = 0
	PriorityNormal     Priority = 10
	PriorityVisible    Priority = 20
	PriorityImmediate  Priority = 30
)

func (p Priority) String() string {
	switch {
	case p >= PriorityImmediate:
		return "immediate"
	case p >= PriorityVisible:
		return "visible"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "background"
	}
}

// Request asks for one thumbnail.
type Request struct {
	Path     string
	Size     int
	Priority Priority
	// Epoch tags the request with the scheduler generation that issued it.
	Epoch        uint64
	FilenameOnly bool
}

// Status is the terminal state of a request.
type Status int

const (
	StatusDelivered Status = iota
	StatusCacheHit
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusCacheHit:
		return "cache_hit"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once per submitted request.
type Result struct {
	Request     Request
	Status      Status
	Fingerprint fingerprint.Fingerprint

	// Image is set for freshly generated thumbnails, Payload for cache hits.
	Image   image.Image
	Payload []byte
	Format  string
	Width   int
	Height  int

	Err error
	// StoreErr is set when the thumbnail was delivered but could not be
	// persisted.
	StoreErr error
}

// OK reports whether the result carries a thumbnail.
func (r Result) OK() bool {
	return r.Status == StatusDelivered || r.Status == StatusCacheHit
}

// Bytes returns the encoded thumbnail, encoding a generated image on demand.
func (r Result) Bytes() ([]byte, string, error) {
	if r.Payload != nil {
		return r.Payload, r.Format, nil
	}
	if r.Image == nil {
		return nil, "", errors.New("result has no thumbnail")
	}
	return decoder.Encode(r.Image)
}
