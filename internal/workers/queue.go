package workers

import "container/heap"

// Item is an entry in a Queue. Its fields are owned by the queue while the
// item is queued; callers read them but change priority only through Fix.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

// Queued reports whether the item is still waiting in a queue.
func (it *Item[T]) Queued() bool {
	return it != nil && it.index >= 0
}

// Queue is a priority queue ordered by priority (highest first) and then by
// insertion order. It is not safe for concurrent use.
type Queue[T any] struct {
	h   itemHeap[T]
	seq uint64
}

// Push adds value with the given priority and returns its handle.
func (q *Queue[T]) Push(value T, priority int) *Item[T] {
	q.seq++
	it := &Item[T]{Value: value, Priority: priority, seq: q.seq}
	heap.Push(&q.h, it)
	return it
}

// Pop removes and returns the highest priority item, or nil when empty.
func (q *Queue[T]) Pop() *Item[T] {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Item[T])
}

// Peek returns the highest priority item without removing it.
func (q *Queue[T]) Peek() *Item[T] {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Remove takes it out of the queue. It reports false if it was not queued.
func (q *Queue[T]) Remove(it *Item[T]) bool {
	if !it.Queued() || it.index >= len(q.h) || q.h[it.index] != it {
		return false
	}
	heap.Remove(&q.h, it.index)
	return true
}

// Fix changes the priority of a queued item. A changed item keeps its
// original insertion order among items of equal priority.
func (q *Queue[T]) Fix(it *Item[T], priority int) bool {
	if !it.Queued() || it.index >= len(q.h) || q.h[it.index] != it {
		return false
	}
	if it.Priority == priority {
		return true
	}
	it.Priority = priority
	heap.Fix(&q.h, it.index)
	return true
}

// Drain removes and returns every queued item in priority order.
func (q *Queue[T]) Drain() []*Item[T] {
	out := make([]*Item[T], 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*Item[T]))
	}
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.h)
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	it := x.(*Item[T])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
