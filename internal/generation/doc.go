// Package generation runs thumbnail requests on a bounded worker pool.
//
// Requests are queued by priority (then submission order). Each job
// fingerprints its source, consults the cache, waits out memory pressure,
// decodes, stores and delivers. Concurrent requests for the same file version
// and size share one decode through singleflight, and decode failures are
// remembered per file version so broken files are not decoded again until
// they change.
//
// Every submitted request ends in exactly one [Status], delivered through the
// callback passed to [Pool.Submit].
package generation
