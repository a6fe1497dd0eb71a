package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors the account's profile in the users collection.
type User struct {
	UID       string
	Email     string
	Nickname  string
	PhotoURL  string
	CreatedAt time.Time
	Role      string
}

// DisplayName falls back to "이름 없음" when no nickname is set.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Nickname) == "" {
		return "이름 없음"
	}
	return u.Nickname
}

// Ghost is a selectable profile avatar.
type Ghost struct {
	ID    string
	Label string
}

// Ghosts returns the avatars offered on the profile page.
func Ghosts() []Ghost {
	out := make([]Ghost, 0, 5)
	for i := 1; i <= 5; i++ {
		out = append(out, Ghost{ID: fmt.Sprintf("ghost_%d", i), Label: fmt.Sprintf("유령%d", i)})
	}
	return out
}

// IsGhost reports whether id names one of the offered avatars.
func IsGhost(id string) bool {
	for _, g := range Ghosts() {
		if g.ID == id {
			return true
		}
	}
	return false
}

// ProfileUpdate carries optional profile changes; nil fields are left alone.
type ProfileUpdate struct {
	Nickname *string
	PhotoURL *string
}

// Apply returns u with the update applied.
func (p ProfileUpdate) Apply(u User) User {
	if p.Nickname != nil {
		u.Nickname = strings.TrimSpace(*p.Nickname)
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	return u
}

const (
	NoticeUpdate  = "업데이트"
	NoticeGeneral = "공지"
)

// newNoticeWindow is how long a notice carries the NEW badge.
const newNoticeWindow = 7 * 24 * time.Hour

// Notice is an announcement. Content is trusted HTML written by admins.
type Notice struct {
	ID        string
	Title     string
	Category  string
	Date      string // YYYY-MM-DD
	Content   string
	CreatedAt time.Time
}

// IsNew reports whether the notice was published within the last 7 days.
func (n Notice) IsNew(now time.Time) bool {
	d, err := ParseDate(n.Date)
	if err != nil {
		return false
	}
	age := now.Sub(d)
	return age >= 0 && age <= newNoticeWindow
}

// Matches is a case-insensitive substring search on title or category.
func (n Notice) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Title), q) ||
		strings.Contains(strings.ToLower(n.Category), q)
}

// FilterNotices keeps notices matching q, preserving order.
func FilterNotices(in []Notice, q string) []Notice {
	out := make([]Notice, 0, len(in))
	for _, n := range in {
		if n.Matches(q) {
			out = append(out, n)
		}
	}
	return out
}
