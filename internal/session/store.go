// Package session persists browser sessions in a bbolt file.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"gagyebu/internal/log"
)

// CookieName is the browser cookie carrying the session ID.
const CookieName = "gagyebu_session"

const bucketSessions = "sessions"

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	ErrNoUser   = errors.New("session requires a user")
)

// Session binds a browser to an account.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"uid"`
	ProviderToken string    `json:"provider_token,omitempty"` // Firebase ID token, empty for local auth
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the bbolt-backed session table.
type Store struct {
	db     *bolt.DB
	ttl    time.Duration
	logger *log.Logger

	mu  sync.RWMutex
	now func() time.Time
}

// Open opens or creates the session database at path.
func Open(path string, ttl time.Duration, logger *log.Logger) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = log.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session bucket: %w", err)
	}
	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentSession),
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// TTL is the lifetime of new sessions.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create starts a session for uid.
func (s *Store) Create(uid, providerToken string) (Session, error) {
	if uid == "" {
		return Session{}, ErrNoUser
	}
	id, err := newID()
	if err != nil {
		return Session{}, err
	}
	now := s.clock()
	sess := Session{
		ID:            id,
		UserID:        uid,
		ProviderToken: providerToken,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(id), data)
	})
	if err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Get returns a live session. Expired sessions are removed and reported
// as ErrNotFound.
func (s *Store) Get(id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNotFound
	}
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	if sess.Expired(s.clock()) {
		if err := s.Delete(id); err != nil {
			s.logger.Warn("Failed to remove expired session", log.FieldError, err)
		}
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Unknown IDs are not an error.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(id))
	})
}

// Purge removes every expired session and returns how many were removed.
func (s *Store) Purge() (int, error) {
	now := s.clock()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil || sess.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if removed > 0 {
		s.logger.Info("Purged expired sessions", "removed", removed)
	}
	return removed, nil
}

// Count returns the number of stored sessions, expired ones included.
func (s *Store) Count() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketSessions)).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Cookie builds the session cookie for sess.
func Cookie(sess Session, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the session cookie in the browser.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest returns the session ID carried by r, or "".
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
