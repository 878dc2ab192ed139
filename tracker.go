package chordtest

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// tracker counts what a scope still has running, by name, so that draining can be waited on
// and, if draining times out, the leftovers can be listed.
//
// Trackers nest: a scope's root tracker has one subgroup for tasks and one for workers.
// Waiting on a tracker does not complete while any subgroup has something running. A tracker
// is reusable; things may be added after everything finished.
type tracker struct {
	mu             sync.Mutex
	parent         *tracker
	idInParent     uint64
	name           string
	count          uint
	allDone        chan struct{}
	running        map[string]uint
	subgroups      map[uint64]*tracker
	nextSubgroupID uint64
}

func newTracker(name string) *tracker {
	return &tracker{name: name}
}

func (g *tracker) initialize() {
	if g.running == nil {
		g.running = make(map[string]uint)
		g.subgroups = make(map[uint64]*tracker)
	}
}

func (g *tracker) subgroup(name string) *tracker {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	id := g.nextSubgroupID
	g.nextSubgroupID += 1
	return &tracker{
		parent:     g,
		idInParent: id,
		name:       name,
	}
}

// add records one more running instance of name.
func (g *tracker) add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	g.count += 1
	g.running[name] += 1
	g.rectifyAdded()
}

// only called with g.mu held
func (g *tracker) rectifyAdded() {
	if g.count+uint(len(g.subgroups)) == 1 && g.parent != nil {
		g.parent.mu.Lock()
		defer g.parent.mu.Unlock()
		g.parent.initialize()

		g.parent.subgroups[g.idInParent] = g
		g.parent.rectifyAdded()
	}
}

// done records that one instance of name finished. It panics if none were running, which
// would mean the scope's own bookkeeping is broken.
func (g *tracker) done(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	c := g.running[name]
	if c == 0 {
		panic(fmt.Sprintf("internal error: nothing named %q running in %q", name, g.name))
	}

	if c == 1 {
		delete(g.running, name)
	} else {
		g.running[name] = c - 1
	}

	g.count -= 1
	g.rectifyDone()
}

// only called with g.mu held
func (g *tracker) rectifyDone() {
	if g.count+uint(len(g.subgroups)) == 0 {
		if g.allDone != nil {
			close(g.allDone)
			g.allDone = nil
		}

		if g.parent != nil {
			g.parent.mu.Lock()
			defer g.parent.mu.Unlock()

			delete(g.parent.subgroups, g.idInParent)
			g.parent.rectifyDone()
		}
	}
}

// wait returns a channel that is closed once nothing is running.
func (g *tracker) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count == 0 && len(g.subgroups) == 0 {
		return alwaysClosed
	}

	if g.allDone == nil {
		g.allDone = make(chan struct{})
	}

	return g.allDone
}

// Snapshot describes what a scope had running at some point in time, as reported by
// [Scope.Running] and [DrainTimeoutError].
//
// Snapshots taken while things start or stop are not atomic across groups: anything running
// for the whole duration of the call is included, changes during it may be missing.
type Snapshot struct {
	Name    string     `json:"name"`
	Running []Running  `json:"running"`
	Groups  []Snapshot `json:"groups"`
}

// Running is a count of instances of one task or worker name.
type Running struct {
	Name  string `json:"name"`
	Count uint   `json:"count"`
}

// Empty reports whether nothing at all was running.
func (s Snapshot) Empty() bool {
	return len(s.Running) == 0 && len(s.Groups) == 0
}

func (s Snapshot) String() string {
	var b strings.Builder
	s.write(&b, 0)
	return b.String()
}

func (s Snapshot) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s:\n", indent, s.Name)
	for _, r := range s.Running {
		if r.Count == 1 {
			fmt.Fprintf(b, "%s  - %s\n", indent, r.Name)
		} else {
			fmt.Fprintf(b, "%s  - %s (x%d)\n", indent, r.Name, r.Count)
		}
	}
	for _, g := range s.Groups {
		g.write(b, depth+1)
	}
}

func (g *tracker) snapshot() Snapshot {
	g.mu.Lock()
	locked := true
	defer func() {
		if locked {
			g.mu.Unlock()
		}
	}()

	var running []Running
	for name, count := range g.running {
		running = append(running, Running{Name: name, Count: count})
	}
	slices.SortFunc(running, func(a, b Running) int { return strings.Compare(a.Name, b.Name) })

	var sgs []*tracker
	for _, sg := range g.subgroups {
		sgs = append(sgs, sg)
	}
	slices.SortFunc(sgs, func(a, b *tracker) int { return int(a.idInParent) - int(b.idInParent) })

	// Unlock during traversal; subgroups lock their parent when they change.
	locked = false
	g.mu.Unlock()

	var groups []Snapshot
	for _, sg := range sgs {
		s := sg.snapshot()
		if !s.Empty() {
			groups = append(groups, s)
		}
	}

	return Snapshot{
		Name:    g.name,
		Running: running,
		Groups:  groups,
	}
}
