package workload

import (
	"sort"
	"sync"
	"time"
)

// debounceWindow is how long a path must stay quiet before its event is
// delivered. One editor save usually produces a Create and several Writes.
const debounceWindow = 100 * time.Millisecond

// debouncer coalesces bursts of document events per path. The first kind of
// a burst is kept, so a new file that is then written stays document-new.
type debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	pending  map[string]*pendingEvent
	onFlush  func(kind, path string)
	stopped  bool
	inflight sync.WaitGroup
}

type pendingEvent struct {
	kind  string
	timer *time.Timer
}

func newDebouncer(window time.Duration, onFlush func(kind, path string)) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		onFlush: onFlush,
	}
}

// Add schedules delivery of an event for path, restarting the path's timer.
func (d *debouncer) Add(kind, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[path]; ok {
		if prev.timer.Stop() {
			d.inflight.Done()
		}
		kind = prev.kind
	}

	pe := &pendingEvent{kind: kind}
	d.pending[path] = pe
	d.inflight.Add(1)
	pe.timer = time.AfterFunc(d.window, func() {
		d.flush(path, pe)
	})
}

// flush delivers pe unless a later Add replaced it.
func (d *debouncer) flush(path string, pe *pendingEvent) {
	defer d.inflight.Done()

	d.mu.Lock()
	if d.pending[path] != pe {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.mu.Unlock()

	// outside the lock so onFlush may take its time
	d.onFlush(pe.kind, path)
}

// Stop delivers every pending event at once and waits for deliveries already
// under way. Later calls to Add are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true

	type event struct{ kind, path string }
	var due []event
	for path, pe := range d.pending {
		// a timer that already fired delivers through flush
		if pe.timer.Stop() {
			d.inflight.Done()
			due = append(due, event{kind: pe.kind, path: path})
			delete(d.pending, path)
		}
	}
	d.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].path < due[j].path })
	for _, ev := range due {
		d.onFlush(ev.kind, ev.path)
	}
	d.inflight.Wait()
}

// Pending returns the number of paths waiting for their window to pass.
func (d *debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
