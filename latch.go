package chordtest

import "sync"

// Latch is a count-down latch: it opens once CountDown has been called as many times as the
// count it was created with, and stays open.
type Latch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// NewLatch returns a latch that opens after count calls to CountDown. A count of zero or less
// gives a latch that is already open.
func NewLatch(count int) *Latch {
	l := &Latch{count: count, done: make(chan struct{})}
	if count <= 0 {
		l.count = 0
		close(l.done)
	}
	return l
}

// CountDown decrements the count, opening the latch when it reaches zero. Calls on an open
// latch have no effect.
func (l *Latch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}
	l.count -= 1
	if l.count == 0 {
		close(l.done)
	}
}

// Count returns how many more calls to CountDown it takes to open the latch.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Done returns a channel that is closed when the latch opens.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Future is a result that is delivered once, from some goroutine, to any number of waiters.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve delivers the result. Only the first call has an effect; it reports whether this
// call was it.
func (f *Future[T]) Resolve(value T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value and error, or the zero value and nil if not yet
// resolved. Use [AwaitResult] to wait for it.
func (f *Future[T]) Result() (T, error) {
	if !isClosed(f.done) {
		var zero T
		return zero, nil
	}
	return f.value, f.err
}
