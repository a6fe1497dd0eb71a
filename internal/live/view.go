package live

import (
	"context"
	"sync"

	"gagyebu/internal/core"
)

// View is the working set behind one open screen. It follows a single
// filter at a time and exposes derived totals that are recomputed only when
// a new snapshot arrives.
type View struct {
	hub     *Hub
	updates chan Snapshot

	mu     sync.Mutex
	sub    *Subscription
	gen    uint64 // bumped on every Switch; pumps from older generations are ignored
	snap   Snapshot
	closed bool

	memoSeq uint64
	memoOK  bool
	totals  core.Totals
	daily   map[string]core.DayStat
}

// NewView creates an empty view bound to hub.
func NewView(hub *Hub) *View {
	return &View{hub: hub, updates: make(chan Snapshot, 1)}
}

// Updates yields each snapshot accepted by the view, newest only.
func (v *View) Updates() <-chan Snapshot { return v.updates }

// Switch moves the view to f. The previous subscription is cancelled before
// the new one is created, so no snapshot of the old filter is accepted
// afterwards. An empty UserID clears the working set.
func (v *View) Switch(ctx context.Context, f Filter) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrHubClosed
	}
	if v.sub != nil {
		v.sub.Cancel()
		v.sub = nil
	}
	v.gen++
	gen := v.gen
	v.snap = Snapshot{Filter: f}
	v.memoOK = false

	if f.UserID == "" {
		v.publishLocked(v.snap)
		v.mu.Unlock()
		return nil
	}

	sub, err := v.hub.Subscribe(ctx, f)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.sub = sub
	v.mu.Unlock()

	go v.pump(gen, sub)
	return nil
}

func (v *View) pump(gen uint64, sub *Subscription) {
	for snap := range sub.C {
		v.mu.Lock()
		if v.gen != gen || v.closed {
			v.mu.Unlock()
			return
		}
		if snap.Seq > v.snap.Seq {
			v.snap = snap
			v.publishLocked(snap)
		}
		v.mu.Unlock()
	}
}

func (v *View) publishLocked(snap Snapshot) {
	select {
	case <-v.updates:
	default:
	}
	v.updates <- snap
}

// Snapshot returns the current working set.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Filter returns the filter the view currently follows.
func (v *View) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap.Filter
}

// Items returns the current transactions, newest first.
func (v *View) Items() []core.Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap.Items
}

// Totals returns income and expense sums of the current working set.
func (v *View) Totals() core.Totals {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.memoLocked()
	return v.totals
}

// Daily returns per-day sums of the current working set.
func (v *View) Daily() map[string]core.DayStat {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.memoLocked()
	return v.daily
}

func (v *View) memoLocked() {
	if v.memoOK && v.memoSeq == v.snap.Seq {
		return
	}
	v.totals = core.MonthlyTotals(v.snap.Items)
	v.daily = core.DailyStats(v.snap.Items)
	v.memoSeq = v.snap.Seq
	v.memoOK = true
}

// Close releases the subscription. The view accepts no further switches.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	if v.sub != nil {
		v.sub.Cancel()
		v.sub = nil
	}
}
