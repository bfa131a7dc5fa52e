/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for transient errors.

# Purpose

Source images frequently live on network mounts. Stat and open calls against them
can fail with ESTALE (stale NFS file handle) or EINTR while the mount recovers. The
thumbnail engine stats every source file to fingerprint it, so these failures would
otherwise surface as spurious cache invalidations or missing thumbnails.

# Usage

	info, err := filesystem.Stat(ctx, "/nfs/photos/a.jpg")

	f, err := filesystem.OpenWithRetry(ctx, path, filesystem.RetryConfig{
	    MaxRetries:     5,
	    InitialBackoff: 100 * time.Millisecond,
	    MaxBackoff:     time.Second,
	})

# Retry Behavior

Retries use cenkalti/backoff exponential backoff (defaults: 3 retries, 50ms
initial, 500ms cap) and stop early when the context is cancelled. Only ESTALE
and EINTR trigger retries; every other error is returned immediately.
*/
package filesystem
