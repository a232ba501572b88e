// Package worker provides a small fixed-size pool of goroutines that
// execute dispatched transactions. The scheduler only ever pushes a
// transaction onto a worker's channel (routed by its TxnId) once the DDR
// lock manager has reported the transaction ready; the worker pool itself has no notion of locks
// or dependencies.
package worker

import "sync"

// stopTask is sent on a worker's channel to make it exit its loop.
type stopTask struct{}

// Task is whatever payload a Handler knows how to execute. In this module
// the scheduler dispatches a *scheduler.Transaction, but the type stays generic so the pool
// can be reused by components that dispatch other payloads (e.g. tests).
type Task interface{}

// Handler executes one dispatched Task. Implementations must not block
// indefinitely: a wedged worker stalls every transaction routed to it.
type Handler interface {
	Handle(t Task)
}

// Worker is a single goroutine draining its own task channel.
type Worker struct {
	name     string
	sender   chan<- Task
	receiver <-chan Task
	wg       *sync.WaitGroup
}

const defaultQueueCapacity = 128

// NewWorker creates a worker with its own bounded task queue. wg is shared
// across all workers in a pool so callers can wait for every worker to
// drain and exit.
func NewWorker(name string, wg *sync.WaitGroup) *Worker {
	ch := make(chan Task, defaultQueueCapacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}

// Start runs handler.Handle for every task until Stop is called.
func (w *Worker) Start(handler Handler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for t := range w.receiver {
			if _, ok := t.(stopTask); ok {
				return
			}
			handler.Handle(t)
		}
	}()
}

// Sender returns the send side of the worker's task queue.
func (w *Worker) Sender() chan<- Task {
	return w.sender
}

// Stop asks the worker to exit once it has drained any queued tasks.
func (w *Worker) Stop() {
	w.sender <- stopTask{}
}

// Pool is a fixed-size set of Workers. Transactions are assigned to a
// worker by TxnId so that repeated dispatch of the same (already-running)
// transaction never lands on two different goroutines.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates n workers, all started against handler.
func NewPool(n int, handler Handler) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{workers: make([]*Worker, n)}
	for i := range p.workers {
		w := NewWorker("worker", &p.wg)
		w.Start(handler)
		p.workers[i] = w
	}
	return p
}

// Dispatch routes task to the worker assigned to id.
func (p *Pool) Dispatch(id uint64, task Task) {
	p.workers[id%uint64(len(p.workers))].Sender() <- task
}

// Stop signals every worker to exit and waits for them to drain.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
