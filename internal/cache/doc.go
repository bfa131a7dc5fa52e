// Package cache stores generated thumbnails keyed by source fingerprint and
// requested size.
//
// Two persistent backends implement [Store]:
//
//   - [FileStore] writes PNG files into the freedesktop.org shared thumbnail
//     directory ($XDG_CACHE_HOME/thumbnails/normal and large). File names are
//     the MD5 of the source URI and validity is recorded in the Thumb::URI,
//     Thumb::MTime and Thumb::Size text chunks, so thumbnails are shared with
//     other desktop applications.
//   - [DBStore] keeps all thumbnails in one SQLite database (WAL mode) keyed
//     by (path, size).
//
// [Layered] adds a bounded in-memory LRU in front of either. [Open] builds the
// configured combination.
//
// A fingerprint mismatch is always a miss and the stale entry is discarded.
// Backend failures are returned as *BackendError; callers treat failed
// lookups as misses and failed stores as non-fatal.
package cache
