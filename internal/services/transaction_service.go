package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/log"
)

// ErrWriteTimeout is returned when the store does not confirm a write in time.
// The write may still land; views converge through the hub either way.
var ErrWriteTimeout = errors.New("write timed out")

// Ledger is the store surface the service needs
type Ledger interface {
	ledger.TransactionWriter
	ledger.TransactionDeleter
	ledger.TransactionReader
	ledger.MonthQuerier
}

// Notifier refreshes live views after a write (live.Hub)
type Notifier interface {
	Notify(userID, date string) int
}

// ChangePublisher fans changes out to other instances (amqp.Client)
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev amqp.ChangeEvent) error
}

// Options configures TransactionService
type Options struct {
	Taxonomy     core.Taxonomy
	WriteTimeout time.Duration
	QueryTimeout time.Duration
	CacheTTL     time.Duration
	CacheSize    int
	Origin       string
}

// TransactionService orchestrates ledger writes: store first, then cache
// invalidation, live refresh and best-effort fan-out.
type TransactionService struct {
	store     Ledger
	notifier  Notifier
	publisher ChangePublisher
	logger    *log.Logger
	events    *log.StructuredLogger
	tax       core.Taxonomy
	origin    string

	writeTimeout time.Duration
	queryTimeout time.Duration

	months *cache.LRUCache[[]core.Transaction]
	group  singleflight.Group

	verMu    sync.Mutex
	versions map[string]uint64 // per user, bumped on invalidation
}

// NewTransactionService wires the service. notifier and publisher may be nil.
func NewTransactionService(store Ledger, notifier Notifier, publisher ChangePublisher, logger *log.Logger, opts Options) *TransactionService {
	if logger == nil {
		logger = log.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &TransactionService{
		store:        store,
		notifier:     notifier,
		publisher:    publisher,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		tax:          opts.Taxonomy,
		origin:       opts.Origin,
		writeTimeout: opts.WriteTimeout,
		queryTimeout: opts.QueryTimeout,
		months:       cache.NewLRUCache[[]core.Transaction](opts.CacheSize, opts.CacheTTL),
		versions:     make(map[string]uint64),
	}
}

// Taxonomy returns the category lists used for validation
func (s *TransactionService) Taxonomy() core.Taxonomy { return s.tax }

// Cache exposes the month cache for registration with a cache.Manager
func (s *TransactionService) Cache() *cache.LRUCache[[]core.Transaction] { return s.months }

// Create validates d and inserts it for userID
func (s *TransactionService) Create(ctx context.Context, userID string, d core.Draft) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNoOwner
	}
	d.ID = ""
	tx, err := d.Transaction(userID, s.tax)
	if err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.write(ctx, amqp.OpCreate, func(ctx context.Context) (core.Transaction, string, error) {
		out, err := s.store.Insert(ctx, tx)
		return out, "", err
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return saved, nil
}

// Update overwrites the editable fields of d.ID. The record's date may move
// to another month; both months are refreshed.
func (s *TransactionService) Update(ctx context.Context, userID string, d core.Draft) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNoOwner
	}
	if d.ID == "" {
		return core.Transaction{}, ledger.ErrNotFound
	}
	tx, err := d.Transaction(userID, s.tax)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.write(ctx, amqp.OpUpdate, func(ctx context.Context) (core.Transaction, string, error) {
		prev, err := s.store.Get(ctx, userID, tx.ID)
		if err != nil {
			return core.Transaction{}, "", err
		}
		out, err := s.store.Update(ctx, tx)
		return out, prev.Date, err
	})
}

// Delete removes a record owned by userID
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNoOwner
	}
	_, err := s.write(ctx, amqp.OpDelete, func(ctx context.Context) (core.Transaction, string, error) {
		prev, err := s.store.Get(ctx, userID, id)
		if err != nil {
			return core.Transaction{}, "", err
		}
		return prev, "", s.store.Delete(ctx, userID, id)
	})
	return err
}

// Get returns one record owned by userID
func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.store.Get(ctx, userID, id)
}

// Month returns userID's transactions for m, newest first. Results are
// cached per user and month; concurrent misses share one query.
func (s *TransactionService) Month(ctx context.Context, userID string, m core.Month) ([]core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrNoOwner
	}
	key := cacheKey(userID, m)
	if items, ok := s.months.Get(key); ok {
		return items, nil
	}

	v, err, _ := s.group.Do(key.Group+"|"+key.Name, func() (any, error) {
		ver := s.version(userID)
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queryTimeout)
		defer cancel()
		items, err := s.store.QueryMonth(qctx, userID, m)
		if err != nil {
			return nil, err
		}
		// A write during the query makes the result stale for caching.
		if s.version(userID) == ver {
			s.months.Set(key, items)
		}
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query month %s: %w", m, err)
	}
	return v.([]core.Transaction), nil
}

// HandleRemoteChange applies a change announced by another instance
func (s *TransactionService) HandleRemoteChange(_ context.Context, ev amqp.ChangeEvent) error {
	if ev.Origin != "" && ev.Origin == s.origin {
		return nil
	}
	s.invalidate(ev.UserID, ev.Date)
	if s.notifier != nil {
		s.notifier.Notify(ev.UserID, ev.Date)
	}
	return nil
}

type writeResult struct {
	tx       core.Transaction
	prevDate string
	err      error
}

// write runs fn under the write timeout. A write that finishes after the
// deadline still triggers the post-write hooks.
func (s *TransactionService) write(ctx context.Context, op string, fn func(context.Context) (core.Transaction, string, error)) (core.Transaction, error) {
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	done := make(chan writeResult, 1)
	go func() {
		tx, prev, err := fn(wctx)
		done <- writeResult{tx: tx, prevDate: prev, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return core.Transaction{}, ErrWriteTimeout
			}
			return core.Transaction{}, r.err
		}
		s.afterWrite(ctx, op, r.tx, r.prevDate)
		return r.tx, nil
	case <-wctx.Done():
		if ctx.Err() != nil {
			return core.Transaction{}, ctx.Err()
		}
		s.logger.WarnContext(ctx, "Write did not complete in time",
			log.FieldOperation, op,
			"timeout", s.writeTimeout.String())
		go func() {
			if r := <-done; r.err == nil {
				s.afterWrite(context.Background(), op, r.tx, r.prevDate)
			}
		}()
		return core.Transaction{}, ErrWriteTimeout
	}
}

func (s *TransactionService) afterWrite(ctx context.Context, op string, tx core.Transaction, prevDate string) {
	s.events.LogTransactionWrite(ctx, op, tx.UserID, tx.ID, string(tx.Type), tx.Amount, tx.Date)

	dates := []string{tx.Date}
	if prevDate != "" && prevDate != tx.Date {
		dates = append(dates, prevDate)
	}
	for _, d := range dates {
		s.invalidate(tx.UserID, d)
		if s.notifier != nil {
			s.notifier.Notify(tx.UserID, d)
		}
	}

	if s.publisher == nil {
		return
	}
	// Publish failures are logged only.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, d := range dates {
		ev := amqp.NewChangeEvent(tx.UserID, d, op, s.origin)
		if err := s.publisher.PublishChange(pctx, ev); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish change event",
				log.FieldUserID, tx.UserID,
				log.FieldOperation, op,
				log.FieldError, err)
		}
	}
}

func (s *TransactionService) version(userID string) uint64 {
	s.verMu.Lock()
	defer s.verMu.Unlock()
	return s.versions[userID]
}

func (s *TransactionService) invalidate(userID, date string) {
	s.verMu.Lock()
	s.versions[userID]++
	s.verMu.Unlock()

	t, err := core.ParseDate(date)
	if err != nil {
		s.months.DeleteGroup(userID)
		return
	}
	s.months.Delete(cacheKey(userID, core.MonthOf(t)))
}

func cacheKey(userID string, m core.Month) cache.Key {
	return cache.Key{Group: userID, Name: m.String()}
}
