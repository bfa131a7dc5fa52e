// Package handlers provides the HTTP API of the thumbnail engine.
//
// It includes handlers for:
//   - Requesting thumbnails for a directory and streaming deliveries (SSE)
//   - Fetching a single thumbnail synchronously
//   - Interrupting and reloading thumbnail creation
//   - Cleaning, erasing and reporting on the cache
//   - Health checks, version and metrics
package handlers
