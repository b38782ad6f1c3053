// Package dispatch fans signals out to secondary venues on a bounded pool.
package dispatch

import (
	"sync"

	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is dropped.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{tasks: make(chan func(), queue)}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.run(fn)
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Errorf("dispatch: worker recovered from panic: %v", r)
		}
	}()
	fn()
}

// Submit enqueues fn and reports whether it was accepted.
func (p *Pool) Submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- fn:
		return true
	default:
		telemetry.Metrics.DispatchDropped.Inc()
		telemetry.Warnf("dispatch: queue full (cap=%d), dropping task", cap(p.tasks))
		return false
	}
}

// Pending is the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int { return len(p.tasks) }

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
