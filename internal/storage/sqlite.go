package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tanya/internal/models"
)

// SQLiteStore keeps one row per user with the chat history as a JSON column.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		email TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL,
		chat_history TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_updated_at ON profiles(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns the record for email.
func (s *SQLiteStore) Load(ctx context.Context, email string) (*models.ProfileRecord, error) {
	var rec models.ProfileRecord
	var history string

	err := s.db.QueryRowContext(ctx,
		`SELECT email, name, version, chat_history, last_updated
		 FROM profiles WHERE email = ?`, email,
	).Scan(&rec.Email, &rec.Name, &rec.Version, &history, &rec.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if history != "" {
		if err := json.Unmarshal([]byte(history), &rec.ChatHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat history: %w", err)
		}
	}
	return &rec, nil
}

// Save inserts or replaces the record for rec.Email.
func (s *SQLiteStore) Save(ctx context.Context, rec *models.ProfileRecord) error {
	if rec.Email == "" {
		return fmt.Errorf("email is required")
	}
	history := rec.ChatHistory
	if history == nil {
		history = map[string]json.RawMessage{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal chat history: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (email, name, version, chat_history, last_updated, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   name = excluded.name,
		   version = excluded.version,
		   chat_history = excluded.chat_history,
		   last_updated = excluded.last_updated,
		   updated_at = excluded.updated_at`,
		rec.Email, rec.Name, rec.Version, string(historyJSON), rec.LastUpdated, time.Now(),
	)
	return err
}

// List returns all stored emails, sorted.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM profiles ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// Paths returns the database file path.
func (s *SQLiteStore) Paths() []string {
	return []string{s.path}
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
