package proc

import "container/list"

// Queue is a FIFO wait queue of threads: component B. It is the doubly
// linked list every blocking resource (mutex, condition variable, the
// process wait set, a busy page frame, ...) embeds, grounded on the
// teacher's fs.BlkList_t wrapper around container/list — the same
// wrapping idiom applied to threads instead of disk blocks. All
// mutations happen under the owning Scheduler's single mutex (see
// sched.go), which stands in for "interrupts disabled" per spec.md §4.1.
type Queue struct {
	l *list.List
}

// NewQueue returns an empty wait queue.
func NewQueue() *Queue {
	return &Queue{l: list.New()}
}

// empty reports whether the queue has no waiters. Caller must hold the
// scheduler lock.
func (q *Queue) empty() bool {
	return q.l.Len() == 0
}

// pushBack enqueues t at the tail. Caller must hold the scheduler lock.
func (q *Queue) pushBack(t *Thread) {
	t.qelem = q.l.PushBack(t)
	t.queue = q
}

// popFront dequeues and returns the head thread, or nil if empty. Caller
// must hold the scheduler lock.
func (q *Queue) popFront() *Thread {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	t := e.Value.(*Thread)
	t.qelem = nil
	t.queue = nil
	return t
}

// remove takes t out of the queue wherever it sits (used by Cancel, which
// does not necessarily remove the head). Caller must hold the scheduler
// lock.
func (q *Queue) remove(t *Thread) {
	if t.qelem == nil {
		return
	}
	q.l.Remove(t.qelem)
	t.qelem = nil
	t.queue = nil
}
