// Package preload decides which thumbnails of a directory to request and in
// what order.
//
// [Plan] is a pure function from a directory listing, the active entry and a
// [Policy] to an ordered list of prioritised targets. [Scheduler] keeps the
// generation pool in line with the latest plan as the user navigates:
// entries that left the plan are cancelled, entries still queued are
// re-prioritised, and entries already completed or in flight are never
// submitted twice.
package preload
