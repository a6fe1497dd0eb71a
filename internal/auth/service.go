package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/session"
)

// MaxNicknameLength bounds nicknames in runes.
const MaxNicknameLength = 20

var (
	// ErrSignedOut means the request carries no live session.
	ErrSignedOut = errors.New("not signed in")

	ErrInvalidAvatar    = errors.New("unknown avatar")
	ErrNicknameTooLong  = fmt.Errorf("nickname longer than %d characters", MaxNicknameLength)
	errSessionUnmatched = errors.New("session user missing from users collection")
)

// SessionStore persists sessions (session.Store)
type SessionStore interface {
	Create(uid, providerToken string) (session.Session, error)
	Get(id string) (session.Session, error)
	Delete(id string) error
}

// Current is a resolved request identity.
type Current struct {
	User    core.User
	Session session.Session
}

// Service glues the provider, the users collection and sessions together.
type Service struct {
	provider Provider
	users    ledger.UserStore
	sessions SessionStore
	limiter  *ratelimit.Limiter
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	nextID   uint64
	watchers map[uint64]*watcher
}

type watcher struct {
	sessionID string
	uid       string
	ch        chan *core.User
}

// NewService wires the auth service. limiter may be nil to disable sign-in
// throttling.
func NewService(provider Provider, users ledger.UserStore, sessions SessionStore, limiter *ratelimit.Limiter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		provider: provider,
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		logger:   logger.WithComponent(log.ComponentAuth),
		now:      time.Now,
		watchers: make(map[uint64]*watcher),
	}
}

// Provider returns the configured provider's name
func (s *Service) Provider() string { return s.provider.Name() }

// SignIn authenticates email/password for the client identified by
// clientKey (usually its IP) and starts a session.
func (s *Service) SignIn(ctx context.Context, clientKey, email, password string) (Current, error) {
	key := clientKey + "|" + strings.ToLower(strings.TrimSpace(email))
	if s.limiter != nil && !s.limiter.Allow(key) {
		s.logger.WarnContext(ctx, "Sign-in rate limited",
			log.FieldClientIP, clientKey,
			log.FieldAuthCode, string(CodeRateLimited))
		return Current{}, newError(CodeRateLimited, nil)
	}

	acct, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.logFailure(ctx, log.OpSignIn, err)
		return Current{}, err
	}
	if s.limiter != nil {
		s.limiter.Reset(key)
	}
	cur, err := s.start(ctx, acct)
	if err != nil {
		return Current{}, err
	}
	s.logger.InfoContext(ctx, "Signed in",
		log.FieldOperation, log.OpSignIn,
		log.FieldUserID, cur.User.UID,
		log.FieldProvider, s.provider.Name())
	return cur, nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Current, error) {
	acct, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		s.logFailure(ctx, log.OpSignUp, err)
		return Current{}, err
	}
	cur, err := s.start(ctx, acct)
	if err != nil {
		return Current{}, err
	}
	s.logger.InfoContext(ctx, "Account created",
		log.FieldOperation, log.OpSignUp,
		log.FieldUserID, cur.User.UID,
		log.FieldProvider, s.provider.Name())
	return cur, nil
}

func (s *Service) start(ctx context.Context, acct Account) (Current, error) {
	u, err := s.mirror(ctx, acct)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to mirror user profile",
			log.FieldUserID, acct.UID,
			log.FieldError, err)
		return Current{}, newError(CodeUnknown, err)
	}
	sess, err := s.sessions.Create(u.UID, acct.Token)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create session",
			log.FieldUserID, u.UID,
			log.FieldError, err)
		return Current{}, newError(CodeUnknown, err)
	}
	return Current{User: u, Session: sess}, nil
}

// mirror returns the users-collection entry for acct, creating it on first
// sign-in with a remote provider.
func (s *Service) mirror(ctx context.Context, acct Account) (core.User, error) {
	u, err := s.users.GetUser(ctx, acct.UID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return core.User{}, err
	}
	u = core.User{
		UID:       acct.UID,
		Email:     acct.Email,
		Nickname:  acct.DisplayName,
		PhotoURL:  acct.PhotoURL,
		CreatedAt: acct.CreatedAt,
		Role:      core.RoleUser,
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user mirror: %w", err)
	}
	return u, nil
}

// CurrentUser resolves a session ID. ErrSignedOut means there is no live
// session; any other error is transient.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (Current, error) {
	if sessionID == "" {
		return Current{}, ErrSignedOut
	}
	sess, err := s.sessions.Get(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return Current{}, ErrSignedOut
	}
	if err != nil {
		return Current{}, fmt.Errorf("load session: %w", err)
	}
	u, err := s.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		s.logger.WarnContext(ctx, "Dropping session of unknown user",
			log.FieldUserID, sess.UserID,
			log.FieldError, errSessionUnmatched)
		_ = s.sessions.Delete(sessionID)
		return Current{}, ErrSignedOut
	}
	if err != nil {
		return Current{}, fmt.Errorf("load user: %w", err)
	}
	return Current{User: u, Session: sess}, nil
}

// SignOut ends the session. Watchers of the session receive nil.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.mu.Lock()
	for id, w := range s.watchers {
		if w.sessionID == sessionID {
			deliver(w.ch, nil)
			close(w.ch)
			delete(s.watchers, id)
		}
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpSignOut)
	return nil
}

// UpdateProfile changes the nickname and/or avatar of the session's user.
// Every watcher of that user receives the new profile.
func (s *Service) UpdateProfile(ctx context.Context, sessionID string, upd core.ProfileUpdate) (core.User, error) {
	cur, err := s.CurrentUser(ctx, sessionID)
	if err != nil {
		return core.User{}, err
	}
	if upd.PhotoURL != nil && *upd.PhotoURL != "" && !core.IsGhost(*upd.PhotoURL) {
		return core.User{}, ErrInvalidAvatar
	}
	if upd.Nickname != nil && utf8.RuneCountInString(strings.TrimSpace(*upd.Nickname)) > MaxNicknameLength {
		return core.User{}, ErrNicknameTooLong
	}

	if err := s.provider.UpdateProfile(ctx, cur.User.UID, cur.Session.ProviderToken, upd); err != nil {
		s.logFailure(ctx, log.OpUpdate, err)
		return core.User{}, err
	}
	u, err := s.users.UpdateProfile(ctx, cur.User.UID, upd)
	if err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}

	s.mu.Lock()
	for _, w := range s.watchers {
		if w.uid == u.UID {
			cp := u
			deliver(w.ch, &cp)
		}
	}
	s.mu.Unlock()
	return u, nil
}

// Watch follows "current user changed" events for a session. The channel
// yields the new profile after updates and nil when the session signs out,
// after which it is closed. Only the latest event is kept for slow readers.
func (s *Service) Watch(sessionID string) (<-chan *core.User, func()) {
	cur, err := s.CurrentUser(context.Background(), sessionID)
	ch := make(chan *core.User, 1)
	if err != nil {
		deliver(ch, nil)
		close(ch)
		return ch, func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = &watcher{sessionID: sessionID, uid: cur.User.UID, ch: ch}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				close(w.ch)
				delete(s.watchers, id)
			}
		})
	}
}

// Watchers returns the number of active watches.
func (s *Service) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func deliver(ch chan *core.User, u *core.User) {
	select {
	case <-ch:
	default:
	}
	ch <- u
}

func (s *Service) logFailure(ctx context.Context, op string, err error) {
	code := CodeOf(err)
	level := s.logger.WarnContext
	if code == CodeUnknown || code == CodeNetwork {
		level = s.logger.ErrorContext
	}
	level(ctx, "Authentication failed",
		log.FieldOperation, op,
		log.FieldProvider, s.provider.Name(),
		log.FieldAuthCode, string(code),
		log.FieldError, err)
}
