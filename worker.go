package chordtest

import (
	"fmt"
	"sync/atomic"
)

// workerFactory starts the worker goroutines of one scope's pool. Each worker is named
// "<scope>-<n>" and carries a binding to the scope for its whole lifetime, so tasks running
// on it can spawn into the same pool.
type workerFactory struct {
	scope *Scope
	pool  *pool
	count atomic.Uint64
}

func newWorkerFactory(s *Scope) *workerFactory {
	return &workerFactory{scope: s}
}

// start launches a worker whose first task is first.
func (f *workerFactory) start(first *task) {
	n := f.count.Add(1)
	name := fmt.Sprintf("%s-%d", f.scope.name, n)

	f.scope.workers.add(name)
	go f.loop(name, first)
}

func (f *workerFactory) loop(name string, first *task) {
	defer f.scope.workers.done(name)

	log := f.scope.log.WithField("worker", name)
	log.Trace("worker started")
	defer log.Trace("worker exiting")

	// Tasks recover their own panics; this only catches failures of the loop itself, which
	// must not take the test binary down with it.
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r}
			log.WithError(err).Error("worker failed")
			f.scope.record(err)
		}
	}()

	ctx := bind(f.scope.ctx, f.scope, name)
	for t := first; t != nil; t = f.pool.next() {
		t.run(ctx, name)
	}
}
