package decay

import (
	"container/heap"
	"time"

	"github.com/oakmund/sprout/internal/store"
)

// runQueue is a min-heap of rules keyed by their next-run time. The
// scheduler pops due rules instead of blanket-rescanning the whole rule
// set on every tick.
type runQueue []queueItem

type queueItem struct {
	Rule  store.DecayRule
	RunAt time.Time
}

func (q runQueue) Len() int           { return len(q) }
func (q runQueue) Less(i, j int) bool { return q[i].RunAt.Before(q[j].RunAt) }
func (q runQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *runQueue) Push(x any)        { *q = append(*q, x.(queueItem)) }
func (q *runQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// buildQueue heaps the given rules by next-run time. Rules that have
// never been scheduled run immediately.
func buildQueue(rules []store.DecayRule, now time.Time) *runQueue {
	q := make(runQueue, 0, len(rules))
	for _, r := range rules {
		runAt := now
		if r.NextRunAt > 0 {
			runAt = time.UnixMilli(r.NextRunAt)
		}
		q = append(q, queueItem{Rule: r, RunAt: runAt})
	}
	heap.Init(&q)
	return &q
}

// popDue removes and returns every rule whose run time is at or before
// now, in run-time order.
func (q *runQueue) popDue(now time.Time) []store.DecayRule {
	var due []store.DecayRule
	for q.Len() > 0 && !(*q)[0].RunAt.After(now) {
		item := heap.Pop(q).(queueItem)
		due = append(due, item.Rule)
	}
	return due
}

// peek returns the earliest run time, or zero when the queue is empty.
func (q *runQueue) peek() (time.Time, bool) {
	if q.Len() == 0 {
		return time.Time{}, false
	}
	return (*q)[0].RunAt, true
}
