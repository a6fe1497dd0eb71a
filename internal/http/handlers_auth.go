package http

import (
	"net/http"
	"strings"

	"gagyebu/internal/auth"
	"gagyebu/internal/log"
	"gagyebu/internal/session"
)

const msgSignedOut = "로그아웃 되었습니다..."

// authFormData drives login.html and signup.html.
type authFormData struct {
	page
	Email   string
	Error   string
	Notice  string
	MinPass int
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := authFormData{page: s.page(r, "로그인")}
	if r.URL.Query().Get("signed_out") == "1" {
		data.Notice = msgSignedOut
	}
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup.html", authFormData{
		page:    s.page(r, "회원가입"),
		MinPass: auth.MinPasswordLength,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, "login.html", "로그인", func(email, password string) (auth.Current, error) {
		return s.auth.SignIn(r.Context(), s.detector.ExtractClientIP(r), email, password)
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, "signup.html", "회원가입", func(email, password string) (auth.Current, error) {
		return s.auth.SignUp(r.Context(), email, password)
	})
}

// authenticate runs a sign-in style call. Failures re-render the form with
// the provider's localized message and the typed email.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, tmpl, title string, call func(email, password string) (auth.Current, error)) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("요청 형식이 올바르지 않습니다.").Write(w)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	cur, err := call(email, password)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if auth.CodeOf(err) == auth.CodeRateLimited {
			status = http.StatusTooManyRequests
		}
		s.render(w, r, status, tmpl, authFormData{
			page:    s.page(r, title),
			Email:   email,
			Error:   auth.MessageOf(err),
			MinPass: auth.MinPasswordLength,
		})
		return
	}

	http.SetCookie(w, session.Cookie(cur.Session, s.cookieSecure))
	log.FromContext(r.Context()).InfoContext(r.Context(), "Session started",
		log.FieldUserID, cur.User.UID,
		log.FieldProvider, s.auth.Provider())
	s.redirect(w, r, auth.HomePath)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.auth.SignOut(ctx, session.FromRequest(r)); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Sign-out failed", log.FieldError, err)
	}
	http.SetCookie(w, session.ClearCookie(s.cookieSecure))
	s.redirect(w, r, auth.LoginPath+"?signed_out=1")
}
