package chordtest

import (
	"context"
	"sync"
)

// Barrier is a cyclic rendezvous point for a fixed number of parties: each call to Await
// blocks until all parties have called it, then all are released and the barrier resets for
// the next round.
//
// If a party's wait fails (ceiling or context), the round is broken: every other party waiting
// in it is released with a Broken *WaitError, and the next round starts empty.
type Barrier struct {
	mu      sync.Mutex
	parties int
	waiting int
	round   *barrierRound
}

type barrierRound struct {
	done    chan struct{}
	tripped bool // all parties arrived
	broken  bool
}

func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic("chordtest: barrier needs at least one party")
	}
	return &Barrier{parties: parties, round: newBarrierRound()}
}

func newBarrierRound() *barrierRound {
	return &barrierRound{done: make(chan struct{})}
}

// Parties returns the number of parties the barrier was created for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Await arrives at the barrier and waits, up to [WaitCeiling], for the rest of the parties.
//
// A round in which every party arrived is a success for all of them, even for a party whose
// own wait ran out at the same moment.
func (b *Barrier) Await(ctx context.Context) error {
	b.mu.Lock()
	round := b.round
	b.waiting += 1
	if b.waiting == b.parties {
		round.tripped = true
		close(round.done)
		b.next()
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	err := await(ctx, "barrier", round.done)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case round.tripped:
		return nil
	case round.broken:
		return &WaitError{Op: "barrier", Outcome: Broken}
	}

	// round.done is only closed when tripped or broken, so err is non-nil here: break the
	// round for everyone else in it.
	round.broken = true
	close(round.done)
	b.next()
	return err
}

// only called with b.mu held
func (b *Barrier) next() {
	b.round = newBarrierRound()
	b.waiting = 0
}
