package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ledger.Store on a single SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements ledger.Store
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const txColumns = `id, user_id, title, date, category, amount, type, method, memo, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		typ, method      string
		created, updated int64
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Date, &t.Category, &t.Amount, &typ, &method, &t.Memo, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TxType(typ)
	t.Method = core.Method(method)
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	return t, nil
}

// Insert implements ledger.TransactionWriter
func (r *SQLiteRepository) Insert(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t = t.Normalize()
	if err := t.ValidateShape(); err != nil {
		return core.Transaction{}, err
	}
	now := r.now()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Date, t.Category, t.Amount, string(t.Type), string(t.Method), t.Memo,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", t.UserID,
		"type", t.Type,
		"amount", t.Amount,
		"date", t.Date)

	return t, nil
}

// Update implements ledger.TransactionWriter
func (r *SQLiteRepository) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t = t.Normalize()
	if t.ID == "" {
		return core.Transaction{}, ledger.ErrNotFound
	}
	if err := t.ValidateShape(); err != nil {
		return core.Transaction{}, err
	}
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		    SET title = ?, date = ?, category = ?, amount = ?, type = ?, method = ?, memo = ?, updated_at = ?
		  WHERE id = ? AND user_id = ?`,
		t.Title, t.Date, t.Category, t.Amount, string(t.Type), string(t.Method), t.Memo, now.UnixNano(),
		t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	} else if n == 0 {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return r.Get(ctx, t.UserID, t.ID)
}

// Delete implements ledger.TransactionDeleter
func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	slog.DebugContext(ctx, "Transaction deleted from SQLite", "id", id, "user_id", userID)
	return nil
}

// Get implements ledger.TransactionReader
func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// QueryMonth implements ledger.MonthQuerier
func (r *SQLiteRepository) QueryMonth(ctx context.Context, userID string, m core.Month) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+txColumns+`
		   FROM transactions
		  WHERE user_id = ? AND date >= ? AND date <= ?
		  ORDER BY date DESC, created_at DESC, rowid DESC`,
		userID, m.Start(), m.End())
	if err != nil {
		return nil, fmt.Errorf("query month %s: %w", m, err)
	}
	defer rows.Close()

	items := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return items, nil
}

// CreateUser implements ledger.UserStore
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if u.UID == "" || u.Email == "" {
		return errors.New("user requires uid and email")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	if u.Role == "" {
		u.Role = core.RoleUser
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, nickname, photo_url, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.UID, u.Email, u.Nickname, u.PhotoURL, u.Role, u.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ledger.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `uid, email, nickname, photo_url, role, created_at`

func scanUser(s rowScanner) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	if err := s.Scan(&u.UID, &u.Email, &u.Nickname, &u.PhotoURL, &u.Role, &created); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = time.Unix(0, created)
	return u, nil
}

func (r *SQLiteRepository) getUserBy(ctx context.Context, column, value string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUser implements ledger.UserStore
func (r *SQLiteRepository) GetUser(ctx context.Context, uid string) (core.User, error) {
	return r.getUserBy(ctx, "uid", uid)
}

// GetUserByEmail implements ledger.UserStore
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUserBy(ctx, "email", strings.TrimSpace(email))
}

// UpdateProfile implements ledger.UserStore
func (r *SQLiteRepository) UpdateProfile(ctx context.Context, uid string, upd core.ProfileUpdate) (core.User, error) {
	u, err := r.GetUser(ctx, uid)
	if err != nil {
		return core.User{}, err
	}
	u = upd.Apply(u)
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET nickname = ?, photo_url = ? WHERE uid = ?`, u.Nickname, u.PhotoURL, uid); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// SetPasswordHash implements ledger.CredentialStore
func (r *SQLiteRepository) SetPasswordHash(ctx context.Context, uid string, hash []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE uid = ?`, hash, uid)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// PasswordHash implements ledger.CredentialStore
func (r *SQLiteRepository) PasswordHash(ctx context.Context, uid string) ([]byte, error) {
	var hash []byte
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE uid = ?`, uid).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(hash) == 0) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}

// ListNotices implements ledger.NoticeReader
func (r *SQLiteRepository) ListNotices(ctx context.Context) ([]core.Notice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, category, date, content, created_at FROM notices ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var out []core.Notice
	for rows.Next() {
		var (
			n       core.Notice
			created int64
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Category, &n.Date, &n.Content, &created); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		n.CreatedAt = time.Unix(0, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddNotice implements ledger.NoticeWriter
func (r *SQLiteRepository) AddNotice(ctx context.Context, n core.Notice) (core.Notice, error) {
	if strings.TrimSpace(n.Title) == "" {
		return core.Notice{}, errors.New("notice title is required")
	}
	if _, err := core.ParseDate(n.Date); err != nil {
		return core.Notice{}, err
	}
	n.ID = uuid.NewString()
	n.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notices (id, title, category, date, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Category, n.Date, n.Content, n.CreatedAt.UnixNano())
	if err != nil {
		return core.Notice{}, fmt.Errorf("insert notice: %w", err)
	}
	return n, nil
}

var _ ledger.Store = (*SQLiteRepository)(nil)
