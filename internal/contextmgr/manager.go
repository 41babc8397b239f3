// Package contextmgr owns user profiles and the per-conversation context store:
// loading and saving profiles, migrating legacy chat history, appending ingested
// chunks, and ranking a conversation's chunks without the shared vector index.
package contextmgr

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/chatid"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/pkg/utils"
)

// Manager loads and saves profiles and operates on conversation maps.
type Manager struct {
	store    storage.ProfileStore
	embedder embedding.Embedder
	logger   *zap.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for swallowed persistence and embedding errors.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = utils.OrNop(l) }
}

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a Manager persisting to store and embedding with embedder.
func New(store storage.ProfileStore, embedder embedding.Embedder, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		embedder: embedder,
		logger:   zap.NewNop(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadProfile returns the profile for email. A blank email, a missing record, or
// an unreadable record yields an empty default profile; failures are logged.
// Loaded chat history is migrated, and the profile is re-saved when migration
// changed anything without losing any of it.
func (m *Manager) LoadProfile(ctx context.Context, email string) *models.UserProfile {
	email = strings.TrimSpace(email)
	profile := models.NewUserProfile(email)
	if email == "" {
		return profile
	}

	rec, err := m.store.Load(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug("no stored profile", zap.String("email", email))
		} else {
			m.logger.Warn("failed to load profile, using default", zap.String("email", email), zap.Error(err))
		}
		return profile
	}

	profile.Name = rec.Name
	profile.LastUpdated = parseTimestamp(rec.LastUpdated)
	convs, changed, lossy := m.migrate(rec.ChatHistory)
	profile.Conversations = convs
	switch {
	case lossy:
		m.logger.Warn("chat history has unreadable entries, leaving stored record as is",
			zap.String("email", email))
	case changed:
		m.logger.Info("migrated chat history", zap.String("email", email), zap.Int("conversations", len(convs)))
		m.SaveProfile(ctx, profile)
	}
	return profile
}

// SaveProfile persists profile. Failures are logged and dropped. Saves for the
// same email are serialized; the last writer wins.
func (m *Manager) SaveProfile(ctx context.Context, profile *models.UserProfile) {
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		m.logger.Warn("skipping save of profile without email")
		return
	}
	lock := m.lockFor(profile.Email)
	lock.Lock()
	defer lock.Unlock()

	now := m.now()
	rec := &models.ProfileRecord{
		Version:     models.ProfileVersion,
		Name:        profile.Name,
		Email:       profile.Email,
		ChatHistory: make(map[string]json.RawMessage, len(profile.Conversations)),
		LastUpdated: now.Format(time.RFC3339),
	}
	for id, conv := range profile.Conversations {
		data, err := json.Marshal(conv)
		if err != nil {
			m.logger.Error("failed to encode conversation", zap.String("email", profile.Email),
				zap.String("conversation", id), zap.Error(err))
			continue
		}
		rec.ChatHistory[id] = data
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Error("failed to save profile", zap.String("email", profile.Email), zap.Error(err))
		return
	}
	profile.LastUpdated = now
}

func (m *Manager) lockFor(email string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[email]
	if !ok {
		l = &sync.Mutex{}
		m.locks[email] = l
	}
	return l
}

// parseTimestamp accepts RFC 3339 and the space-separated form older records used.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NewConversation adds an empty conversation with a fresh id to convs and returns it.
func (m *Manager) NewConversation(convs map[string]*models.Conversation) *models.Conversation {
	id := chatid.NewUnique(m.now(), func(id string) bool {
		_, ok := convs[id]
		return ok
	})
	conv := models.NewConversation(id)
	convs[id] = conv
	return conv
}

// DeleteConversation removes id from convs and reports whether it was present.
func DeleteConversation(convs map[string]*models.Conversation, id string) bool {
	if _, ok := convs[id]; !ok {
		return false
	}
	delete(convs, id)
	return true
}

// RecordExchange appends a question and its answer to conv. A default-titled
// conversation takes its title from the first question.
func RecordExchange(conv *models.Conversation, question, answer string, sources []string) {
	if conv.Title == models.DefaultTitle && len(conv.Messages) == 0 {
		conv.Title = utils.Truncate(question, titleLength)
	}
	var src []string
	if len(sources) > 0 {
		src = append([]string(nil), sources...)
	}
	conv.Messages = append(conv.Messages,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: answer, Sources: src},
	)
}

// AppendContext appends chunks and sources to the context of conversation id.
// An unknown id leaves convs unchanged. convs is returned for chaining.
func AppendContext(id string, chunks []models.Chunk, sources []string, convs map[string]*models.Conversation) map[string]*models.Conversation {
	conv, ok := convs[id]
	if !ok {
		return convs
	}
	conv.Context.Chunks = append(conv.Context.Chunks, chunks...)
	conv.Context.Sources = append(conv.Context.Sources, sources...)
	return convs
}

// RetrieveContext ranks the chunks of conversation id against query by raw inner
// product and returns the top topK, independently of any shared vector index.
// An unknown id, an empty context, or an embedding failure yields an empty result.
func (m *Manager) RetrieveContext(ctx context.Context, id, query string, convs map[string]*models.Conversation, topK int) []models.Chunk {
	conv, ok := convs[id]
	if !ok || len(conv.Context.Chunks) == 0 || topK <= 0 {
		return []models.Chunk{}
	}
	chunks := conv.Context.Chunks
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(chunks) {
		m.logger.Warn("contextual retrieval failed to embed chunks", zap.String("conversation", id), zap.Error(err))
		return []models.Chunk{}
	}
	q, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("contextual retrieval failed to embed query", zap.String("conversation", id), zap.Error(err))
		return []models.Chunk{}
	}
	hits := vector.Rank(q, vectors, topK)
	out := make([]models.Chunk, len(hits))
	for i, h := range hits {
		out[i] = chunks[h.Position]
	}
	return out
}
