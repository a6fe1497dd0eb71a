// Package auth signs users in through a pluggable provider, mirrors their
// profile into the users collection and tracks the session guard state.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"gagyebu/internal/core"
)

// MinPasswordLength matches the provider's password policy.
const MinPasswordLength = 6

// Account is what a provider knows about a signed-in user.
type Account struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Token       string // provider ID token, empty for local accounts
	CreatedAt   time.Time
}

// Provider is the external authentication service.
type Provider interface {
	Name() string
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignUp(ctx context.Context, email, password string) (Account, error)
	// UpdateProfile pushes display name and photo changes to the provider.
	UpdateProfile(ctx context.Context, uid, token string, upd core.ProfileUpdate) error
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(CodeInvalidEmail, err)
	}
	return email, nil
}
