package scheduler

import "sync"

// AsyncLog is a gap-intolerant ordered consumer of items numbered
// consecutively starting from startFrom. Items can be Inserted in any
// order — sequencer batches from different replicas may arrive out of
// order — but Next always returns them strictly in position order, which
// is what lets a single replica's stream be consumed deterministically
// regardless of network reordering.
//
// AsyncLog is polled, not awaited: there is no blocking Next. Callers
// check HasNext and only call Next once it is true.
type AsyncLog struct {
	mu   sync.Mutex
	log  map[uint32]interface{}
	next uint32
}

// NewAsyncLog creates a log whose first expected position is startFrom.
func NewAsyncLog(startFrom uint32) *AsyncLog {
	return &AsyncLog{
		log:  make(map[uint32]interface{}),
		next: startFrom,
	}
}

// Insert adds item at position. A position earlier than the next expected
// one is a late/duplicate delivery and is silently ignored (§7.3). A
// position that is already occupied is a contract violation and returns
// ErrDuplicatePosition.
func (l *AsyncLog) Insert(position uint32, item interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if position < l.next {
		return nil
	}
	if _, ok := l.log[position]; ok {
		return ErrDuplicatePosition
	}
	l.log[position] = item
	return nil
}

// HasNext reports whether the item at the next expected position has
// arrived.
func (l *AsyncLog) HasNext() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.log[l.next]
	return ok
}

// Peek returns the next item without advancing the log. It panics if
// HasNext is false; callers are expected to check first, same as Next.
func (l *AsyncLog) Peek() interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.log[l.next]
	if !ok {
		panic("scheduler: Peek called with no next item")
	}
	return item
}

// Next returns the item at the next expected position and advances the
// log. It returns ErrNoNext if HasNext is false.
func (l *AsyncLog) Next() (uint32, interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.log[l.next]
	if !ok {
		return 0, nil, ErrNoNext
	}
	position := l.next
	delete(l.log, position)
	l.next++
	return position, item, nil
}
