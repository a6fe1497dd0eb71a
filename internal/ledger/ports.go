// Package ledger declares the storage ports consumed by the services and
// HTTP layers. Backends in internal/storage implement them.
package ledger

import (
	"context"
	"errors"

	"gagyebu/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when creating a user whose email exists.
	ErrEmailTaken = errors.New("email already registered")
)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// Insert assigns ID and CreatedAt and stores the record.
		Insert(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// Update overwrites the editable fields of the record owned by t.UserID.
		Update(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	TransactionDeleter interface {
		Delete(ctx context.Context, userID, id string) error
	}

	TransactionReader interface {
		Get(ctx context.Context, userID, id string) (core.Transaction, error)
	}

	// MonthQuerier returns a user's records dated within the month,
	// ordered by date desc then creation time desc.
	MonthQuerier interface {
		QueryMonth(ctx context.Context, userID string, m core.Month) ([]core.Transaction, error)
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, uid string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		UpdateProfile(ctx context.Context, uid string, upd core.ProfileUpdate) (core.User, error)
	}

	// CredentialStore keeps password hashes for the local auth provider.
	CredentialStore interface {
		SetPasswordHash(ctx context.Context, uid string, hash []byte) error
		PasswordHash(ctx context.Context, uid string) ([]byte, error)
	}

	NoticeReader interface {
		// ListNotices returns notices ordered by date desc.
		ListNotices(ctx context.Context) ([]core.Notice, error)
	}

	NoticeWriter interface {
		AddNotice(ctx context.Context, n core.Notice) (core.Notice, error)
	}

	// Store is the full set of ports a backend provides.
	Store interface {
		TransactionWriter
		TransactionDeleter
		TransactionReader
		MonthQuerier
		UserStore
		CredentialStore
		NoticeReader
		NoticeWriter
		Ping(ctx context.Context) error
		Close() error
	}
)
