package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/tanya/pkg/utils"
)

// DefaultMaxSessions bounds the registry when Deps.MaxSessions is not set.
const DefaultMaxSessions = 256

// Registry hands out one Session per user email. At most MaxSessions are kept
// open; the least recently used one is closed to make room. A closed session's
// conversations are persisted and reload on the next Get.
type Registry struct {
	deps     Deps
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
}

// NewRegistry creates a registry building sessions from deps.
func NewRegistry(deps Deps) *Registry {
	deps.Logger = utils.OrNop(deps.Logger)
	if deps.MaxSessions <= 0 {
		deps.MaxSessions = DefaultMaxSessions
	}
	// lru.New only fails for a non-positive size.
	sessions, _ := lru.New[string, *Session](deps.MaxSessions)
	return &Registry{deps: deps, sessions: sessions}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Get returns the session for email, loading the user's profile on first use.
func (r *Registry) Get(ctx context.Context, email string) (*Session, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	s, evicted, err := r.getLocked(ctx, email)
	if evicted != nil {
		if cerr := evicted.Close(); cerr != nil {
			r.deps.Logger.Warn("failed to close evicted session", zap.String("email", evicted.Email()), zap.Error(cerr))
		}
		r.deps.Logger.Debug("session evicted", zap.String("email", evicted.Email()))
	}
	return s, err
}

func (r *Registry) getLocked(ctx context.Context, email string) (s, evicted *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(email); ok {
		return s, nil, nil
	}
	s, err = newSession(ctx, r.deps, email)
	if err != nil {
		return nil, nil, err
	}
	if r.sessions.Len() >= r.deps.MaxSessions {
		_, evicted, _ = r.sessions.RemoveOldest()
	}
	r.sessions.Add(email, s)
	r.deps.Logger.Debug("session opened", zap.String("email", email))
	return s, evicted, nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Len()
}

// Close closes every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, s := range r.sessions.Values() {
		errs = append(errs, s.Close())
	}
	r.sessions.Purge()
	return errors.Join(errs...)
}
