package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

// LocalStore is the storage a local provider needs
type LocalStore interface {
	ledger.UserStore
	ledger.CredentialStore
}

// LocalProvider authenticates against password hashes kept in the ledger
// store. It owns user creation; the service only mirrors for remote
// providers.
type LocalProvider struct {
	store LocalStore
	cost  int
	now   func() time.Time
}

// NewLocalProvider creates a bcrypt-backed provider. cost 0 means
// bcrypt.DefaultCost.
func NewLocalProvider(store LocalStore, cost int) *LocalProvider {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &LocalProvider{store: store, cost: cost, now: time.Now}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	u, err := p.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ledger.ErrNotFound) {
		return Account{}, newError(CodeUnknownAccount, nil)
	}
	if err != nil {
		return Account{}, newError(CodeUnknown, err)
	}
	hash, err := p.store.PasswordHash(ctx, u.UID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Account{}, newError(CodeWrongCredential, nil)
	}
	if err != nil {
		return Account{}, newError(CodeUnknown, err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Account{}, newError(CodeWrongCredential, nil)
	}
	return accountOf(u), nil
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return Account{}, newError(CodeWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Account{}, newError(CodeWeakPassword, err)
	}

	u := core.User{
		UID:       uuid.NewString(),
		Email:     email,
		CreatedAt: p.now().UTC(),
		Role:      core.RoleUser,
	}
	if err := p.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ledger.ErrEmailTaken) {
			return Account{}, newError(CodeEmailInUse, nil)
		}
		return Account{}, newError(CodeUnknown, fmt.Errorf("create user: %w", err))
	}
	if err := p.store.SetPasswordHash(ctx, u.UID, hash); err != nil {
		return Account{}, newError(CodeUnknown, fmt.Errorf("store password: %w", err))
	}
	return accountOf(u), nil
}

// UpdateProfile is a no-op: the users collection is the source of truth.
func (p *LocalProvider) UpdateProfile(context.Context, string, string, core.ProfileUpdate) error {
	return nil
}

func accountOf(u core.User) Account {
	return Account{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.Nickname,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}
