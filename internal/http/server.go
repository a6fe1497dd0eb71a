package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"gagyebu/internal/auth"
	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/live"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
	appweb "gagyebu/web"
)

// TransactionService is the ledger surface used by the handlers
// (services.TransactionService).
type TransactionService interface {
	Create(ctx context.Context, userID string, d core.Draft) (core.Transaction, error)
	Update(ctx context.Context, userID string, d core.Draft) (core.Transaction, error)
	Delete(ctx context.Context, userID, id string) error
	Get(ctx context.Context, userID, id string) (core.Transaction, error)
	Month(ctx context.Context, userID string, m core.Month) ([]core.Transaction, error)
	Taxonomy() core.Taxonomy
}

// AuthService is the session surface used by the handlers (auth.Service).
type AuthService interface {
	Provider() string
	SignIn(ctx context.Context, clientKey, email, password string) (auth.Current, error)
	SignUp(ctx context.Context, email, password string) (auth.Current, error)
	SignOut(ctx context.Context, sessionID string) error
	UpdateProfile(ctx context.Context, sessionID string, upd core.ProfileUpdate) (core.User, error)
	Check(ctx context.Context, sessionID string) (*auth.Guard, auth.Current)
	Watch(sessionID string) (<-chan *core.User, func())
	Watchers() int
}

// Pinger reports store health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStats exposes month cache counters for /metrics.
type CacheStats interface {
	Stats() cache.Stats
}

// Deps holds the collaborators of the HTTP server.
type Deps struct {
	Transactions TransactionService
	Auth         AuthService
	Hub          *live.Hub
	Notices      ledger.NoticeReader
	Store        Pinger
	Cache        CacheStats // optional

	Logger            *log.Logger
	CookieSecure      bool
	TrustedProxies    []string
	RequestsPerMinute int              // POST limit per client; zero means 60
	Now               func() time.Time // optional clock for tests
}

// Server wraps http.Server with the ledger's routes and middleware.
type Server struct {
	http.Server

	tx      TransactionService
	auth    AuthService
	hub     *live.Hub
	notices ledger.NoticeReader
	store   Pinger
	cache   CacheStats

	templates *template.Template
	logger    *log.Logger
	events    *log.StructuredLogger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	upgrader websocket.Upgrader

	cookieSecure bool
	now          func() time.Time
	startedAt    time.Time

	// liveCtx ends hijacked WebSocket connections on shutdown.
	liveCtx  context.Context
	liveStop context.CancelFunc

	saved   atomic.Int64
	deleted atomic.Int64
	wsConns atomic.Int64
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	limits := ratelimit.DefaultConfig()
	if deps.RequestsPerMinute > 0 {
		limits.RequestsPerMinute = deps.RequestsPerMinute
	}

	s := &Server{
		tx:           deps.Transactions,
		auth:         deps.Auth,
		hub:          deps.Hub,
		notices:      deps.Notices,
		store:        deps.Store,
		cache:        deps.Cache,
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(limits),
		cookieSecure: deps.CookieSecure,
		now:          now,
		startedAt:    now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	s.liveCtx, s.liveStop = context.WithCancel(context.Background())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Server.RegisterOnShutdown(s.liveStop)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(security.Headers(security.DefaultPolicy()))
	r.Use(s.detector.Middleware(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("페이지를 찾을 수 없어요.").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError("GET, POST").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.CacheFor(time.Hour)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.withSession)

		r.Group(func(r chi.Router) {
			r.Use(s.guardPage)
			r.Get("/", s.handleHome)
			r.Get("/login", s.handleLoginPage)
			r.Get("/signup", s.handleSignupPage)
			r.Get("/my", s.handleMyPage)
			r.Get("/notice", s.handleNotices)
		})

		r.With(limit).Post("/login", s.handleLogin)
		r.With(limit).Post("/signup", s.handleSignup)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/ui/editor", s.handleEditor)
			r.Get("/transactions/{id}/edit", s.handleEditTransaction)
			r.Get("/transactions/{id}/delete", s.handleDeleteDialog)
			r.With(limit).Post("/transactions", s.handleCreateTransaction)
			r.With(limit).Post("/transactions/{id}", s.handleUpdateTransaction)
			r.With(limit).Post("/transactions/{id}/delete", s.handleDeleteTransaction)
			r.With(limit).Post("/my/profile", s.handleUpdateProfile)
			r.Get("/ws/transactions", s.handleLiveTransactions)
		})
	})
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("요청이 너무 많아요. 잠시 후 다시 시도해주세요.", s.limiter.RetryAfter()).
		TriggerErrorNotification("요청이 너무 많아요.", "잠시 후 다시 시도해주세요.").
		Write(w)
}

// Shutdown stops the rate limiter cleanup and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	s.liveStop()
	return s.Server.Shutdown(ctx)
}
