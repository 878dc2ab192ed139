package chordtest

import (
	"sync"
	"time"
)

// defaultKeepAlive is how long an idle worker waits for more work before exiting.
const defaultKeepAlive = 60 * time.Second

// pool is an unbounded, cached pool of worker goroutines: a submitted task goes to an idle
// worker if one is waiting, otherwise a new worker is started for it.
//
// submit and shutdown share mu, so a send on work never races with closing it.
type pool struct {
	mu        sync.Mutex
	closed    bool
	work      chan *task
	pending   *tracker
	factory   *workerFactory
	keepAlive time.Duration
}

func newPool(pending *tracker, factory *workerFactory, keepAlive time.Duration) *pool {
	p := &pool{
		work:      make(chan *task),
		pending:   pending,
		factory:   factory,
		keepAlive: keepAlive,
	}
	factory.pool = p
	return p
}

// submit never blocks. It panics with *UsageError once shutdown has started.
func (p *pool) submit(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		panic(usageErrorf("Spawn", "task %q spawned into scope %q after it started exiting", t.name, t.scope.name))
	}

	p.pending.add(t.name)

	select {
	case p.work <- t:
	default:
		p.factory.start(t)
	}
}

// next blocks until there is another task for the calling worker, returning nil when the
// worker should exit instead.
func (p *pool) next() *task {
	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	select {
	case t, ok := <-p.work:
		if !ok {
			return nil
		}
		return t
	case <-timer.C:
		return nil
	}
}

// shutdown stops accepting tasks and tells idle workers to exit. Tasks already running are
// left to finish.
func (p *pool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.work)
}
