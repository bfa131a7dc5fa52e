// Package middleware provides HTTP middleware for the thumbnail service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//
// Both wrappers forward http.Flusher so the event stream can be served
// through them.
package middleware
