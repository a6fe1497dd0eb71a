package auth

import (
	"context"
	"errors"
	"sync"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// State of the session guard.
type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

const (
	LoginPath  = "/login"
	SignupPath = "/signup"
	HomePath   = "/"
)

// LoadingText is shown while the session resolves.
const LoadingText = "로딩 중..."

// IsPublicRoute reports whether path is one of the sign-in routes.
func IsPublicRoute(path string) bool {
	return path == LoginPath || path == SignupPath
}

// Decision is what the router must do for a page request.
type Decision struct {
	Redirect    string // empty means render the page
	Placeholder bool   // render the loading placeholder instead of the page
}

// Guard tracks the session state of one request or connection. It starts
// in loading and moves only on external events.
type Guard struct {
	mu    sync.Mutex
	state State
	user  *core.User
	err   error
}

// NewGuard returns a guard in the loading state.
func NewGuard() *Guard {
	return &Guard{state: StateLoading}
}

// Resolve applies a settled session lookup; nil means signed out.
func (g *Guard) Resolve(u *core.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = nil
	if u == nil {
		g.state, g.user = StateUnauthenticated, nil
		return
	}
	cp := *u
	g.state, g.user = StateAuthenticated, &cp
}

// Fail records a transient lookup failure. The guard stays in loading.
func (g *Guard) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state, g.user, g.err = StateLoading, nil, err
}

// SignOut moves to unauthenticated.
func (g *Guard) SignOut() {
	g.Resolve(nil)
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// User returns the signed-in user or nil.
func (g *Guard) User() *core.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	cp := *g.user
	return &cp
}

// Err is the last transient failure, if the guard is loading because of one.
func (g *Guard) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Decide applies the routing policy to path.
func (g *Guard) Decide(path string) Decision {
	switch g.State() {
	case StateLoading:
		return Decision{Placeholder: true}
	case StateUnauthenticated:
		if !IsPublicRoute(path) {
			return Decision{Redirect: LoginPath}
		}
	case StateAuthenticated:
		if IsPublicRoute(path) {
			return Decision{Redirect: HomePath}
		}
	}
	return Decision{}
}

// Check resolves sessionID into a guard. Current is set only when the
// guard is authenticated.
func (s *Service) Check(ctx context.Context, sessionID string) (*Guard, Current) {
	g := NewGuard()
	cur, err := s.CurrentUser(ctx, sessionID)
	switch {
	case err == nil:
		g.Resolve(&cur.User)
	case errors.Is(err, ErrSignedOut):
		g.Resolve(nil)
	default:
		s.logger.WarnContext(ctx, "Session lookup failed", log.FieldError, err)
		g.Fail(err)
	}
	return g, cur
}
