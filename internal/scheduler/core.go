package scheduler

import (
	"github.com/pingcap-incubator/ddrslog/internal/config"
	"github.com/pingcap-incubator/ddrslog/internal/metrics"
	"github.com/pingcap-incubator/ddrslog/internal/worker"
)

// Executor runs a dispatched transaction to completion. This is the one
// seam where the core hands off to an external collaborator (§1): the
// storage engine and the rest of the execution pipeline live outside this
// module, so Core only needs to know when a transaction is done, not how
// it ran.
type Executor interface {
	Execute(txn *Transaction)
}

// dispatchHandler adapts an Executor into a worker.Handler, releasing the
// transaction's locks once it has run so that Core doesn't require callers
// to remember to call Scheduler.Complete themselves.
type dispatchHandler struct {
	core *Core
	exec Executor
}

func (h dispatchHandler) Handle(t worker.Task) {
	txn := t.(*Transaction)
	h.exec.Execute(txn)
	h.core.sched.Complete(txn.ID)
}

// Core wires together one partition's worth of the scheduler: the lock
// manager, the deadlock resolver ticking in the background, a fixed-size
// worker pool executing dispatched transactions, and the Scheduler glue
// that drives all three from each replica's AsyncLog. It is the
// convenience entry point; tests and fine-grained callers can still use
// LockManager, DeadlockResolver, and Scheduler directly.
type Core struct {
	cfg       *config.Config
	lm        *LockManager
	resolver  *DeadlockResolver
	pool      *worker.Pool
	sched     *Scheduler
	drainStop chan struct{}
}

// NewCore assembles a Core for cfg, executing ready transactions with exec
// and reporting resolver activity to metrics (nil is accepted).
func NewCore(cfg *config.Config, exec Executor, metrics DeadlockResolverMetrics) *Core {
	lm := NewLockManager()
	resolver := NewDeadlockResolver(lm, cfg.DDRInterval, metrics)

	core := &Core{cfg: cfg, lm: lm, resolver: resolver, drainStop: make(chan struct{})}

	numWorkers := int(cfg.NumWorkers)
	if numWorkers == 0 {
		numWorkers = 1
	}
	pool := worker.NewPool(numWorkers, dispatchHandler{core: core, exec: exec})
	core.pool = pool
	core.sched = NewScheduler(cfg, lm, NewPoolDispatcher(pool))
	return core
}

// Submit feeds one replica's ordered transaction stream into the core.
func (c *Core) Submit(originReplica uint32, position uint32, txn *Transaction) error {
	return c.sched.Submit(originReplica, position, txn)
}

// ProcessReplica drains whatever is currently available, in order, from
// originReplica's stream. Callers typically run one goroutine per replica
// calling this in a loop.
func (c *Core) ProcessReplica(originReplica uint32) int {
	return c.sched.ProcessReplica(originReplica)
}

// Start begins the background deadlock-resolver loop and a goroutine that
// dispatches whatever it frees up.
func (c *Core) Start() {
	c.resolver.Start()
	go func() {
		for {
			select {
			case <-c.drainStop:
				return
			case <-c.resolver.Ready:
				c.sched.DrainResolverReady()
			}
		}
	}()
}

// Stop halts the resolver loop, the ready-dispatch goroutine, and the
// worker pool. Submit/ProcessReplica must not be called after Stop
// returns.
func (c *Core) Stop() {
	c.resolver.Stop()
	close(c.drainStop)
	c.pool.Stop()
}

// Stats reports the lock manager's current introspection snapshot,
// publishing the table size to Prometheus along the way (the same
// GetStats call the original's metrics-reporting ticker makes).
func (c *Core) Stats(level int) Stats {
	stats := c.lm.GetStats(level)
	metrics.ReportTxnInfoTableSize(c.cfg.LocalReplica, c.cfg.LocalPartition, stats.NumTxns)
	return stats
}
