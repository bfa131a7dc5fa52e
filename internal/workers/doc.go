/*
Package workers sizes worker pools in containerized environments and provides
the priority queue that feeds them.

# Sizing

Go sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU() still
reports the host. Pool sizes are derived from GOMAXPROCS:

	numWorkers := workers.Count(2.0, 16) // 2 per CPU, max 16
	numWorkers := workers.ForMixed(12)   // 1.5 per CPU, max 12

	// Thumbnail generation pool: configured value, else mixed sizing
	numWorkers := workers.ForDecode(cfg.Workers)

All helpers respect the THUMBS_WORKERS environment variable:

	env:
	- name: THUMBS_WORKERS
	  value: "4"

# Queue

Queue orders items by priority (highest first) and then by insertion order,
so equal-priority work runs first-in first-out. Push returns a handle that can
later be passed to Remove or Fix, which is how queued work is cancelled or
re-prioritised without scanning:

	var q workers.Queue[*job]
	h := q.Push(j, 10)
	q.Fix(h, 20)
	next := q.Pop()

Queue is not synchronized; callers guard it with their own mutex.
*/
package workers
