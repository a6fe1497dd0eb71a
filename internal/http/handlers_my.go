package http

import (
	"errors"
	"net/http"
	"strings"

	"gagyebu/internal/auth"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/session"
)

const (
	msgProfileSaved     = "프로필 수정 완료!"
	msgProfileSavedSub  = "새로운 프로필이 저장되었어요."
	msgInvalidAvatar    = "선택할 수 없는 프로필 이미지예요."
	msgNicknameTooLong  = "닉네임은 20자 이하로 입력해주세요."
	msgNoticeLoadFailed = "공지사항을 불러오지 못했어요."
)

// profileData drives my.html and its "profile_card" block.
type profileData struct {
	page
	Profile     core.User
	Ghosts      []core.Ghost
	MaxNickname int
}

func (s *Server) profileFor(r *http.Request, u core.User) profileData {
	return profileData{
		page:        s.page(r, "마이페이지"),
		Profile:     u,
		Ghosts:      core.Ghosts(),
		MaxNickname: auth.MaxNicknameLength,
	}
}

func (s *Server) handleMyPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "my.html", s.profileFor(r, sessionFrom(r.Context()).Current.User))
}

// handleUpdateProfile applies the fields present in the form; an absent
// field leaves the stored value alone.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if fail := ParseFormOrFail(r); fail != nil {
		fail.Write(w)
		return
	}
	ctx := r.Context()

	var upd core.ProfileUpdate
	if _, ok := r.PostForm["nickname"]; ok {
		nick := sanitizeInput(r.PostForm.Get("nickname"))
		upd.Nickname = &nick
	}
	if _, ok := r.PostForm["photo"]; ok {
		photo := strings.TrimSpace(r.PostForm.Get("photo"))
		upd.PhotoURL = &photo
	}

	u, err := s.auth.UpdateProfile(ctx, session.FromRequest(r), upd)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrSignedOut):
		NewHTMXResponse().
			Status(http.StatusUnauthorized).
			TriggerErrorNotification(core.MsgLoginRequired, core.MsgLoginRequiredSub).
			Write(w)
		return
	case errors.Is(err, auth.ErrInvalidAvatar):
		UnprocessableEntityError(msgInvalidAvatar).TriggerErrorNotification(msgInvalidAvatar, "").Write(w)
		return
	case errors.Is(err, auth.ErrNicknameTooLong):
		UnprocessableEntityError(msgNicknameTooLong).TriggerErrorNotification(msgNicknameTooLong, "").Write(w)
		return
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Profile update failed", log.FieldError, err)
		msg := auth.MessageOf(err)
		InternalServerError(msg).TriggerErrorNotification(msg, "").Write(w)
		return
	}

	data := s.profileFor(r, u)
	data.User = &u
	body, err := s.renderHTML(ctx, "profile_card", data)
	if err != nil {
		InternalServerError(msgLoadFailed).Write(w)
		return
	}
	NewHTMXResponse().
		BodyHTML(body).
		TriggerProfileUpdated().
		TriggerSuccessNotification(msgProfileSaved, msgProfileSavedSub).
		Write(w)
}

// noticeData drives notice.html and its "notice_list" block.
type noticeData struct {
	page
	Query   string
	Notices []core.Notice
	LoadErr string
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := sanitizeInput(r.URL.Query().Get("q"))
	data := noticeData{page: s.page(r, "공지사항"), Query: q}

	all, err := s.notices.ListNotices(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Notice list failed", log.FieldError, err)
		data.LoadErr = msgNoticeLoadFailed
	}
	data.Notices = core.FilterNotices(all, q)

	name := "notice.html"
	if isHTMX(r) && r.Header.Get("HX-Target") == "notice-list" {
		name = "notice_list"
	}
	s.render(w, r, http.StatusOK, name, data)
}
