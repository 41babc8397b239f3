package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
)

// FileStore keeps one indented JSON document per user at <dir>/<email>.json.
// Writes go to a temporary file that is renamed over the target.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("profile directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads and decodes the record for email.
func (s *FileStore) Load(ctx context.Context, email string) (*models.ProfileRecord, error) {
	path, err := s.path(email)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var rec models.ProfileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// Save writes rec atomically.
func (s *FileStore) Save(ctx context.Context, rec *models.ProfileRecord) error {
	path, err := s.path(rec.Email)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}

// List returns the email recorded in every readable profile file, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	var emails []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var head struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(data, &head) != nil || head.Email == "" {
			continue
		}
		emails = append(emails, head.Email)
	}
	sort.Strings(emails)
	return emails, nil
}

// Paths returns the profile directory.
func (s *FileStore) Paths() []string {
	return []string{s.dir}
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(email string) (string, error) {
	name := FileName(email)
	if name == "" {
		return "", fmt.Errorf("email is required")
	}
	return filepath.Join(s.dir, name), nil
}

// FileName maps an email to its profile file name. Characters outside
// [A-Za-z0-9@._+-] are replaced with '_' so the name cannot escape the directory.
func FileName(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '@' || r == '.' || r == '_' || r == '+' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if strings.HasPrefix(name, ".") {
		name = "_" + name
	}
	return name + ".json"
}
