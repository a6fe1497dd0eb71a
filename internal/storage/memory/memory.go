package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

type userRecord struct {
	user core.User
	hash []byte
}

// Store is an in-process ledger.Store for development and tests.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int64
	items   map[string]core.Transaction
	order   map[string]int64 // insertion sequence, tie-breaker after createdAt
	users   map[string]*userRecord
	notices []core.Notice
}

func New() *Store {
	return &Store{
		now:   time.Now,
		items: make(map[string]core.Transaction),
		order: make(map[string]int64),
		users: make(map[string]*userRecord),
	}
}

type seedNotice struct {
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
	Date     string `yaml:"date"`
	Content  string `yaml:"content"`
}

// NewFromFiles seeds notices from base/notices.yaml when present.
func NewFromFiles(base string) *Store {
	s := New()
	data, err := os.ReadFile(filepath.Join(base, "notices.yaml"))
	if err != nil {
		return s
	}
	var seeds []seedNotice
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return s
	}
	for _, n := range seeds {
		_, _ = s.AddNotice(context.Background(), core.Notice{
			Title: strings.TrimSpace(n.Title), Category: n.Category, Date: n.Date, Content: n.Content,
		})
	}
	return s
}

// SetClock replaces the time source used for server timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Insert implements ledger.TransactionWriter
func (s *Store) Insert(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t = t.Normalize()
	if err := t.ValidateShape(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.seq++
	s.items[t.ID] = t
	s.order[t.ID] = s.seq
	return t, nil
}

// Update implements ledger.TransactionWriter
func (s *Store) Update(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t = t.Normalize()
	if err := t.ValidateShape(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[t.ID]
	if !ok || cur.UserID != t.UserID {
		return core.Transaction{}, ledger.ErrNotFound
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now()
	s.items[t.ID] = t
	return t, nil
}

// Delete implements ledger.TransactionDeleter
func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok || cur.UserID != userID {
		return ledger.ErrNotFound
	}
	delete(s.items, id)
	delete(s.order, id)
	return nil
}

// Get implements ledger.TransactionReader
func (s *Store) Get(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok || cur.UserID != userID {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return cur, nil
}

// QueryMonth implements ledger.MonthQuerier
func (s *Store) QueryMonth(ctx context.Context, userID string, m core.Month) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end := m.Start(), m.End()
	out := []core.Transaction{}
	for _, t := range s.items {
		if t.UserID == userID && t.Date >= start && t.Date <= end {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.order[a.ID] > s.order[b.ID]
	})
	return out, nil
}

// CreateUser implements ledger.UserStore
func (s *Store) CreateUser(_ context.Context, u core.User) error {
	if u.UID == "" || u.Email == "" {
		return errors.New("user requires uid and email")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Email, u.Email) {
			return ledger.ErrEmailTaken
		}
	}
	if _, ok := s.users[u.UID]; ok {
		return fmt.Errorf("user %s already exists", u.UID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	if u.Role == "" {
		u.Role = core.RoleUser
	}
	s.users[u.UID] = &userRecord{user: u}
	return nil
}

// GetUser implements ledger.UserStore
func (s *Store) GetUser(_ context.Context, uid string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[uid]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	return rec.user, nil
}

// GetUserByEmail implements ledger.UserStore
func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.TrimSpace(email)
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Email, email) {
			return rec.user, nil
		}
	}
	return core.User{}, ledger.ErrNotFound
}

// UpdateProfile implements ledger.UserStore
func (s *Store) UpdateProfile(_ context.Context, uid string, upd core.ProfileUpdate) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[uid]
	if !ok {
		return core.User{}, ledger.ErrNotFound
	}
	rec.user = upd.Apply(rec.user)
	return rec.user, nil
}

// SetPasswordHash implements ledger.CredentialStore
func (s *Store) SetPasswordHash(_ context.Context, uid string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[uid]
	if !ok {
		return ledger.ErrNotFound
	}
	rec.hash = append([]byte(nil), hash...)
	return nil
}

// PasswordHash implements ledger.CredentialStore
func (s *Store) PasswordHash(_ context.Context, uid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[uid]
	if !ok || len(rec.hash) == 0 {
		return nil, ledger.ErrNotFound
	}
	return append([]byte(nil), rec.hash...), nil
}

// ListNotices implements ledger.NoticeReader
func (s *Store) ListNotices(_ context.Context) ([]core.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Notice(nil), s.notices...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AddNotice implements ledger.NoticeWriter
func (s *Store) AddNotice(_ context.Context, n core.Notice) (core.Notice, error) {
	if strings.TrimSpace(n.Title) == "" {
		return core.Notice{}, errors.New("notice title is required")
	}
	if _, err := core.ParseDate(n.Date); err != nil {
		return core.Notice{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	s.notices = append(s.notices, n)
	return n, nil
}

var _ ledger.Store = (*Store)(nil)
