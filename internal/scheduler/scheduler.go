package scheduler

import (
	"sync"

	"github.com/pingcap-incubator/ddrslog/internal/config"
	"github.com/pingcap-incubator/ddrslog/internal/worker"
	"github.com/pingcap-incubator/ddrslog/log"
)

// Dispatcher receives a ready transaction for execution. The worker pool
// implements this; tests can substitute a recording fake.
type Dispatcher interface {
	Dispatch(id TxnId, txn *Transaction)
}

// poolDispatcher adapts a worker.Pool (keyed by opaque uint64 task) into a
// Dispatcher keyed by TxnId.
type poolDispatcher struct{ pool *worker.Pool }

func (d poolDispatcher) Dispatch(id TxnId, txn *Transaction) {
	d.pool.Dispatch(id, txn)
}

// Scheduler is the glue that binds the ordered-consumption logs, the lock
// manager, and the deadlock resolver into a working pipeline: it pops
// transactions off each replica's AsyncLog in order, registers them with
// the lock manager, and dispatches whatever becomes ready — whether from
// AcquireLocks, ReleaseLocks, or the deadlock resolver — to the worker
// pool.
//
// A multi-home transaction's remaster case is the one place this core
// calls AcceptTransaction and AcquireLocks as genuinely separate steps
// more than once for the same TxnId: two lock-only fragments arrive, one
// locking the old master and one the new. AcceptTransaction is idempotent
// per TxnId (tracked via seen) so the first fragment to arrive sets the
// expected fragment count; every fragment, including the first, still
// calls AcquireLocks with its own single-key view.
type Scheduler struct {
	cfg *config.Config
	lm  *LockManager

	mu      sync.Mutex
	logs    map[uint32]*AsyncLog // keyed by origin replica
	seen    map[TxnId]bool
	pending map[TxnId]*Transaction // last-seen wire record for a not-yet-dispatched txn

	dispatcher Dispatcher
}

// NewScheduler creates a scheduler over lm. dispatcher receives ready
// transactions; pass a *worker.Pool wrapped with NewPoolDispatcher in
// production, or a fake in tests.
func NewScheduler(cfg *config.Config, lm *LockManager, dispatcher Dispatcher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		lm:         lm,
		logs:       make(map[uint32]*AsyncLog),
		seen:       make(map[TxnId]bool),
		pending:    make(map[TxnId]*Transaction),
		dispatcher: dispatcher,
	}
}

// NewPoolDispatcher adapts a worker.Pool into a Dispatcher.
func NewPoolDispatcher(pool *worker.Pool) Dispatcher {
	return poolDispatcher{pool: pool}
}

// logFor returns (creating if needed) the AsyncLog fed by originReplica.
func (s *Scheduler) logFor(originReplica uint32) *AsyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[originReplica]
	if !ok {
		l = NewAsyncLog(0)
		s.logs[originReplica] = l
	}
	return l
}

// Submit inserts txn at position in the stream originating from
// originReplica. Positions may arrive out of order; ProcessReplica only
// ever consumes them in order (§4.1).
func (s *Scheduler) Submit(originReplica uint32, position uint32, txn *Transaction) error {
	return s.logFor(originReplica).Insert(position, txn)
}

// ProcessReplica drains every currently-available, in-order item from
// originReplica's log, registering each with the lock manager and
// dispatching whatever becomes ready. It returns the number of items
// processed.
func (s *Scheduler) ProcessReplica(originReplica uint32) int {
	l := s.logFor(originReplica)
	n := 0
	for l.HasNext() {
		_, item, err := l.Next()
		if err != nil {
			// HasNext was just true; Next failing here would be a
			// programming error in AsyncLog itself.
			log.Fatalf("scheduler: Next failed after HasNext: %v", err)
		}
		s.process(item.(*Transaction))
		n++
	}
	return n
}

func (s *Scheduler) process(txn *Transaction) {
	h, err := NewTxn(s.cfg, txn)
	if err != nil {
		log.Errorf("scheduler: dropping txn %d: %v", txn.ID, err)
		return
	}

	s.mu.Lock()
	s.pending[txn.ID] = txn
	firstSight := !s.seen[txn.ID]
	s.seen[txn.ID] = true
	s.mu.Unlock()

	if firstSight {
		s.lm.AcceptTransaction(h)
	}

	if s.lm.AcquireLocks(h) == Acquired {
		s.dispatchReady(txn.ID)
	}
}

// dispatchReady looks up the last-seen wire record for id and sends it to
// the dispatcher, forgetting the bookkeeping the scheduler no longer
// needs once a transaction is running.
func (s *Scheduler) dispatchReady(id TxnId) {
	s.mu.Lock()
	txn, ok := s.pending[id]
	delete(s.pending, id)
	delete(s.seen, id)
	s.mu.Unlock()

	if !ok {
		log.Fatalf("scheduler: txn %d became ready with no pending record", id)
	}
	s.dispatcher.Dispatch(id, txn)
}

// Complete releases id's locks once its worker has finished executing it
// and dispatches any successor transactions that become ready as a
// result.
func (s *Scheduler) Complete(id TxnId) {
	for _, ready := range s.lm.ReleaseLocks(id) {
		s.dispatchReady(ready)
	}
}

// DrainResolverReady dispatches every transaction the deadlock resolver
// has pushed since the last call. Call this whenever the resolver's Ready
// channel fires.
func (s *Scheduler) DrainResolverReady() {
	for _, id := range s.lm.GetReadyTxns() {
		s.dispatchReady(id)
	}
}
