// Package backend opens the ledger store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"

	"gagyebu/internal/config"
	"gagyebu/internal/ledger"
	"gagyebu/internal/log"
	"gagyebu/internal/storage"
	"gagyebu/internal/storage/memory"
)

// Kind names a store implementation.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Kinds lists the supported backends, production first.
func Kinds() []Kind { return []Kind{KindSQLite, KindMemory} }

func (k Kind) String() string { return string(k) }

func (k Kind) valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Config selects and parameterises a backend.
type Config struct {
	Kind       Kind
	SQLitePath string
	// SeedDir holds JSON fixtures loaded by the memory backend.
	SeedDir string
}

// FromAppConfig extracts the backend settings from cfg.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("app config is nil")
	}
	c := Config{
		Kind:       Kind(cfg.DataBackend),
		SQLitePath: cfg.SQLiteDBPath,
		SeedDir:    cfg.DataDir,
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if !c.Kind.valid() {
		return fmt.Errorf("unknown backend %q, want one of %v", c.Kind, Kinds())
	}
	if c.Kind == KindSQLite && c.SQLitePath == "" {
		return errors.New("sqlite backend needs a database path")
	}
	return nil
}

// Handle is an opened store and the function that releases it.
type Handle struct {
	Store ledger.Store
	Close func() error
}

type opener func(ctx context.Context, c Config, logger *log.Logger) (Handle, error)

// Factory opens stores by kind.
type Factory struct {
	logger  *log.Logger
	openers map[Kind]opener
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &Factory{
		logger: logger.WithComponent(log.ComponentStorage),
		openers: map[Kind]opener{
			KindSQLite: openSQLite,
			KindMemory: openMemory,
		},
	}
}

// Open validates c and returns a store that has answered a ping.
func (f *Factory) Open(ctx context.Context, c Config) (Handle, error) {
	if err := c.Validate(); err != nil {
		return Handle{}, err
	}
	open, ok := f.openers[c.Kind]
	if !ok {
		return Handle{}, fmt.Errorf("backend %s has no opener", c.Kind)
	}
	h, err := open(ctx, c, f.logger)
	if err != nil {
		return Handle{}, fmt.Errorf("open %s backend: %w", c.Kind, err)
	}
	if err := h.Store.Ping(ctx); err != nil {
		_ = h.Close()
		return Handle{}, fmt.Errorf("ping %s backend: %w", c.Kind, err)
	}
	return h, nil
}

func openSQLite(_ context.Context, c Config, logger *log.Logger) (Handle, error) {
	repo, err := storage.NewSQLiteRepository(c.SQLitePath)
	if err != nil {
		return Handle{}, err
	}
	logger.Info("SQLite store ready", log.FieldPath, c.SQLitePath)
	return Handle{Store: repo, Close: repo.Close}, nil
}

func openMemory(_ context.Context, c Config, logger *log.Logger) (Handle, error) {
	dir := c.SeedDir
	if dir == "" {
		dir = "data"
	}
	store := memory.NewFromFiles(dir)
	logger.Info("Memory store ready", log.FieldPath, dir)
	return Handle{Store: store, Close: store.Close}, nil
}
