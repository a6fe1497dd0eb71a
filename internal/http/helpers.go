package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"gagyebu/internal/auth"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/session"
)

type contextKey string

const requestSessionKey contextKey = "request_session"

var errTemplatesMissing = errors.New("templates not loaded")

// requestSession is the resolved session state of one request.
type requestSession struct {
	Guard   *auth.Guard
	Current auth.Current
}

// UserID is empty unless the request is authenticated.
func (rs *requestSession) UserID() string {
	if rs == nil || rs.Guard.State() != auth.StateAuthenticated {
		return ""
	}
	return rs.Current.User.UID
}

func sessionFrom(ctx context.Context) *requestSession {
	rs, _ := ctx.Value(requestSessionKey).(*requestSession)
	if rs == nil {
		return &requestSession{Guard: auth.NewGuard()}
	}
	return rs
}

// withSession resolves the session cookie once per request.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := session.FromRequest(r)
		g, cur := s.auth.Check(r.Context(), sid)
		if sid != "" && g.State() == auth.StateUnauthenticated {
			http.SetCookie(w, session.ClearCookie(s.cookieSecure))
		}

		ctx := context.WithValue(r.Context(), requestSessionKey, &requestSession{Guard: g, Current: cur})
		if uid := cur.User.UID; uid != "" {
			ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, uid))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guardPage applies the session routing policy to full-page requests.
func (s *Server) guardPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs := sessionFrom(r.Context())
		d := rs.Guard.Decide(r.URL.Path)
		switch {
		case d.Placeholder:
			s.render(w, r, http.StatusOK, "loading.html", loadingData{
				page: s.page(r, auth.LoadingText),
				Text: auth.LoadingText,
			})
		case d.Redirect != "":
			s.redirect(w, r, d.Redirect)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// requireUser rejects partials and writes without a signed-in user. They
// get a notification rather than a redirect so the open editor keeps its
// values.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFrom(r.Context()).UserID() == "" {
			NewHTMXResponse().
				Status(http.StatusUnauthorized).
				TriggerErrorNotification(core.MsgLoginRequired, core.MsgLoginRequiredSub).
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirect uses HX-Redirect for htmx requests and 303 otherwise.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// page is embedded by every full-page template model.
type page struct {
	Title string
	Path  string
	User  *core.User
	Now   time.Time
}

func (s *Server) page(r *http.Request, title string) page {
	return page{
		Title: title,
		Path:  r.URL.Path,
		User:  sessionFrom(r.Context()).Guard.User(),
		Now:   s.now(),
	}
}

type loadingData struct {
	page
	Text string
}

// render buffers the template output; a template error becomes a 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{"template": name})
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderHTML renders a partial for an HTMXResponseBuilder body.
func (s *Server) renderHTML(ctx context.Context, name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesMissing
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(ctx, "Partial execution failed", log.FieldError, err, "template", name)
		return nil, err
	}
	return buf.Bytes(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"won":      core.FormatWon,
		"signed":   core.FormatSigned,
		"summary":  core.FormatSummary,
		"compact":  core.FormatCompact,
		"joinDate": core.FormatJoinDate,
		"shortDate": func(date string) string {
			d, err := core.ParseDate(date)
			if err != nil {
				return date
			}
			return d.Format("1월 2일")
		},
		"dayHeading": func(date string) string {
			d, err := core.ParseDate(date)
			if err != nil {
				return ""
			}
			return d.Format("1월 2일") + " 내역"
		},
		"isIncome": func(t core.TxType) bool { return t == core.Income },
		"income":   func() core.TxType { return core.Income },
		"expense":  func() core.TxType { return core.Expense },
		// Notice bodies are admin-authored HTML.
		"trusted": func(s string) template.HTML { return template.HTML(s) },
	}
}
