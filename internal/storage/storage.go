// Package storage persists user profile records keyed by email.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

// ErrNotFound is returned when no record exists for an email.
var ErrNotFound = errors.New("profile not found")

// ProfileStore reads and writes one profile record per user.
type ProfileStore interface {
	// Load returns the stored record for email, or ErrNotFound.
	Load(ctx context.Context, email string) (*models.ProfileRecord, error)
	// Save replaces the stored record for rec.Email.
	Save(ctx context.Context, rec *models.ProfileRecord) error
	// List returns the emails of all stored profiles.
	List(ctx context.Context) ([]string, error)
	// Paths returns the on-disk locations used by the store.
	Paths() []string
	Close() error
}

// NewProfileStore opens the store selected by cfg.Backend.
func NewProfileStore(cfg config.StorageConfig) (ProfileStore, error) {
	switch cfg.Backend {
	case "json", "":
		return NewFileStore(cfg.ProfileDir)
	case "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: json, sqlite)", cfg.Backend)
	}
}
