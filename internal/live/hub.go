// Package live keeps per-user monthly working sets current. A Hub runs one
// query loop per subscription and redelivers the full result set whenever
// a write touches the subscribed month.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/log"
)

var (
	ErrInvalidFilter = errors.New("live: filter requires a user and a valid month")
	ErrHubClosed     = errors.New("live: hub closed")
)

// Filter selects one user's transactions for one calendar month.
type Filter struct {
	UserID string
	Month  core.Month
}

func (f Filter) matches(userID, date string) bool {
	return f.UserID == userID && (date == "" || f.Month.Contains(date))
}

// Snapshot is a complete result set. Seq increases across the hub, so a
// larger Seq is always newer.
type Snapshot struct {
	Filter Filter
	Seq    uint64
	Items  []core.Transaction
	Err    error
}

// Hub fans store changes out to subscriptions.
type Hub struct {
	querier ledger.MonthQuerier
	logger  *log.Logger
	timeout time.Duration

	seq atomic.Uint64

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

// NewHub creates a hub. queryTimeout bounds each re-query; zero means 5s.
func NewHub(querier ledger.MonthQuerier, logger *log.Logger, queryTimeout time.Duration) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Hub{
		querier: querier,
		logger:  logger.WithComponent(log.ComponentLive),
		timeout: queryTimeout,
		subs:    make(map[uint64]*Subscription),
	}
}

// Subscription delivers snapshots on C until Cancel is called or the
// subscribing context ends. C is closed on cancellation.
type Subscription struct {
	C <-chan Snapshot

	hub     *Hub
	id      uint64
	filter  Filter
	ch      chan Snapshot
	refresh chan struct{}
	done    chan struct{}

	mu        sync.Mutex // serialises delivery against Cancel
	cancelled bool
	stopOnce  sync.Once
}

// Subscribe registers f and schedules the initial query.
func (h *Hub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	if f.UserID == "" || !f.Month.Valid() {
		return nil, ErrInvalidFilter
	}

	ch := make(chan Snapshot, 1)
	s := &Subscription{
		C:       ch,
		hub:     h,
		filter:  f,
		ch:      ch,
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("Subscribed",
		log.FieldUserID, f.UserID,
		log.FieldMonth, f.Month.String(),
		log.FieldSubscribers, count)

	s.trigger()
	go s.run(ctx)
	return s, nil
}

// Filter returns the subscribed filter.
func (s *Subscription) Filter() Filter { return s.filter }

// Cancel stops delivery. It is safe to call more than once; once it
// returns no further snapshot can be received from C.
func (s *Subscription) Cancel() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.cancelled = true
		select {
		case <-s.ch:
		default:
		}
		close(s.ch)
		s.mu.Unlock()

		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}

func (s *Subscription) trigger() {
	select {
	case s.refresh <- struct{}{}:
	default: // a refresh is already pending
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer s.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.refresh:
			s.deliver(s.hub.query(ctx, s.filter))
		}
	}
}

// deliver replaces any undelivered snapshot with snap.
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (h *Hub) query(ctx context.Context, f Filter) Snapshot {
	qctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	items, err := h.querier.QueryMonth(qctx, f.UserID, f.Month)
	snap := Snapshot{Filter: f, Seq: h.seq.Add(1), Items: items}
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Error("Month query failed",
				log.FieldUserID, f.UserID,
				log.FieldMonth, f.Month.String(),
				log.FieldError, err)
		}
		snap.Items = nil
		snap.Err = err
	}
	return snap
}

// Notify re-queries every subscription of userID whose month contains date.
// An empty date refreshes all of the user's subscriptions.
func (h *Hub) Notify(userID, date string) int {
	h.mu.Lock()
	var targets []*Subscription
	for _, s := range h.subs {
		if s.filter.matches(userID, date) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.trigger()
	}
	if len(targets) > 0 {
		h.logger.Debug("Subscriptions refreshed",
			log.FieldUserID, userID,
			log.FieldDate, date,
			log.FieldSubscribers, len(targets))
	}
	return len(targets)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close cancels every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}
