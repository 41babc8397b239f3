package contextmgr

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/tanya/internal/chatid"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// keywordEmbedder maps each text to a vector of keyword counts.
type keywordEmbedder struct {
	keywords []string
	fail     bool
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("model unavailable")
	}
	v := make([]float32, len(e.keywords))
	for i, k := range e.keywords {
		v[i] = float32(strings.Count(strings.ToLower(text), k))
	}
	return v, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Dimensions() int { return len(e.keywords) }
func (e *keywordEmbedder) Close() error    { return nil }

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Load(ctx context.Context, email string) (*models.ProfileRecord, error) {
	return nil, errors.New("disk on fire")
}
func (failingStore) Save(ctx context.Context, rec *models.ProfileRecord) error {
	return errors.New("disk on fire")
}
func (failingStore) List(ctx context.Context) ([]string, error) { return nil, errors.New("disk on fire") }
func (failingStore) Paths() []string                            { return nil }
func (failingStore) Close() error                               { return nil }

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	emb := &keywordEmbedder{keywords: []string{"apple", "banana", "cherry"}}
	return New(store, emb, WithClock(fixedClock)), dir
}

func TestLoadProfile_UnknownEmailReturnsDefault(t *testing.T) {
	m, _ := newManager(t)
	p := m.LoadProfile(context.Background(), "new@example.com")
	assert.Equal(t, "new@example.com", p.Email)
	assert.Empty(t, p.Name)
	assert.NotNil(t, p.Conversations)
	assert.Empty(t, p.Conversations)
}

func TestLoadProfile_BlankEmailReturnsDefault(t *testing.T) {
	m, _ := newManager(t)
	p := m.LoadProfile(context.Background(), "  ")
	assert.Empty(t, p.Email)
	assert.Empty(t, p.Conversations)
}

func TestLoadProfile_MalformedRecordReturnsDefault(t *testing.T) {
	m, dir := newManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x@example.com.json"), []byte("{oops"), 0644))
	p := m.LoadProfile(context.Background(), "x@example.com")
	assert.Equal(t, "x@example.com", p.Email)
	assert.Empty(t, p.Conversations)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	p := models.NewUserProfile("ann@example.com")
	p.Name = "Ann"
	conv := m.NewConversation(p.Conversations)
	AppendContext(conv.ID, []models.Chunk{{Text: "apple facts", Source: "a.txt"}}, []string{"a.txt"}, p.Conversations)
	RecordExchange(conv, "what about apples?", "they are red", []string{"a.txt"})
	m.SaveProfile(ctx, p)
	assert.Equal(t, fixedNow, p.LastUpdated)

	loaded := m.LoadProfile(ctx, "ann@example.com")
	assert.Equal(t, "Ann", loaded.Name)
	assert.Equal(t, p.Conversations, loaded.Conversations)
	assert.True(t, loaded.LastUpdated.Equal(fixedNow))
}

func TestSaveProfile_FailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := New(failingStore{}, &keywordEmbedder{}, WithLogger(zap.New(core)), WithClock(fixedClock))
	ctx := context.Background()

	p := m.LoadProfile(ctx, "ann@example.com")
	assert.Empty(t, p.Conversations)

	assert.NotPanics(t, func() { m.SaveProfile(ctx, p) })
	assert.Equal(t, 1, logs.FilterMessage("failed to save profile").Len())
	assert.True(t, p.LastUpdated.IsZero(), "failed save should not bump LastUpdated")

	m.SaveProfile(ctx, models.NewUserProfile(""))
	assert.Equal(t, 1, logs.FilterMessage("skipping save of profile without email").Len())
}

func TestLoadProfile_MigratesAndResaves(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()
	legacy := `{
  "version": "1.0",
  "name": "Old",
  "email": "old@example.com",
  "chat_history": {
    "0": [{"role": "user", "content": "hello there"}, {"role": "assistant", "content": "hi"}],
    "legacy-id": {"title": "Kept", "messages": [], "context": {"text_chunks": [["t", "s"]], "sources": ["s"]}}
  },
  "last_updated": "2023-01-02 03:04:05.123456"
}`
	path := filepath.Join(dir, "old@example.com.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	p := m.LoadProfile(ctx, "old@example.com")
	require.Len(t, p.Conversations, 2)
	for id := range p.Conversations {
		assert.True(t, chatid.Valid(id), "id %q should be canonical", id)
	}
	assert.True(t, p.LastUpdated.Equal(fixedNow), "re-save bumps LastUpdated")

	var rec models.ProfileRecord
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, models.ProfileVersion, rec.Version)
	_, stillLegacy := rec.ChatHistory["legacy-id"]
	assert.False(t, stillLegacy, "migrated profile should be re-saved")
}

func TestAppendContext(t *testing.T) {
	convs := map[string]*models.Conversation{
		"chat_20240101000000": models.NewConversation("chat_20240101000000"),
	}
	before := convs["chat_20240101000000"].Clone()

	out := AppendContext("chat_29990101000000", []models.Chunk{{Text: "x", Source: "y"}}, []string{"y"}, convs)
	assert.Equal(t, before, out["chat_20240101000000"], "unknown id leaves content unchanged")
	assert.Len(t, out, 1)

	AppendContext("chat_20240101000000", []models.Chunk{{Text: "a", Source: "f"}}, []string{"f"}, convs)
	AppendContext("chat_20240101000000", []models.Chunk{{Text: "b", Source: "g"}}, []string{"g"}, convs)
	got := convs["chat_20240101000000"].Context
	assert.Equal(t, []models.Chunk{{Text: "a", Source: "f"}, {Text: "b", Source: "g"}}, got.Chunks)
	assert.Equal(t, []string{"f", "g"}, got.Sources)
}

func TestRetrieveContext(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	convs := map[string]*models.Conversation{}
	conv := m.NewConversation(convs)
	chunks := []models.Chunk{
		{Text: "banana bread", Source: "b"},
		{Text: "apple apple apple", Source: "a3"},
		{Text: "cherry pie", Source: "c"},
		{Text: "apple tart", Source: "a1"},
	}
	AppendContext(conv.ID, chunks, []string{"b", "a3", "c", "a1"}, convs)

	got := m.RetrieveContext(ctx, conv.ID, "apple", convs, 2)
	assert.Equal(t, []models.Chunk{chunks[1], chunks[3]}, got)

	all := m.RetrieveContext(ctx, conv.ID, "apple", convs, 10)
	assert.Len(t, all, 4)
	assert.Equal(t, chunks[0], all[2], "ties keep insertion order")
	assert.Equal(t, chunks[2], all[3])

	assert.Empty(t, m.RetrieveContext(ctx, "chat_20000101000000", "apple", convs, 5))

	empty := m.NewConversation(convs)
	assert.Empty(t, m.RetrieveContext(ctx, empty.ID, "apple", convs, 5))
}

func TestRetrieveContext_EmbedFailureDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	m := New(store, &keywordEmbedder{keywords: []string{"apple"}, fail: true}, WithClock(fixedClock))

	convs := map[string]*models.Conversation{}
	conv := m.NewConversation(convs)
	AppendContext(conv.ID, []models.Chunk{{Text: "apple", Source: "a"}}, []string{"a"}, convs)

	got := m.RetrieveContext(context.Background(), conv.ID, "apple", convs, 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNewConversationAndDelete(t *testing.T) {
	m, _ := newManager(t)
	convs := map[string]*models.Conversation{}
	a := m.NewConversation(convs)
	b := m.NewConversation(convs)
	assert.Equal(t, "chat_20240506070809", a.ID)
	assert.Equal(t, "chat_20240506070810", b.ID, "same-second ids are bumped")
	assert.Equal(t, models.DefaultTitle, a.Title)

	assert.True(t, DeleteConversation(convs, a.ID))
	assert.False(t, DeleteConversation(convs, a.ID))
	assert.Len(t, convs, 1)
}

func TestRecordExchange(t *testing.T) {
	conv := models.NewConversation("chat_20240101000000")
	RecordExchange(conv, strings.Repeat("q", 60), "answer", []string{"a.pdf"})
	assert.Equal(t, strings.Repeat("q", 50)+"...", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Nil(t, conv.Messages[0].Sources)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, []string{"a.pdf"}, conv.Messages[1].Sources)

	RecordExchange(conv, "second", "again", nil)
	assert.Equal(t, strings.Repeat("q", 50)+"...", conv.Title, "title is only set once")
	assert.Len(t, conv.Messages, 4)
	assert.Nil(t, conv.Messages[3].Sources)
}

func TestParseTimestamp(t *testing.T) {
	assert.True(t, parseTimestamp("2024-05-06T07:08:09Z").Equal(fixedNow))
	assert.Equal(t, 2023, parseTimestamp("2023-01-02 03:04:05.123456").Year())
	assert.True(t, parseTimestamp("yesterday").IsZero())
}

func TestLoadProfile_UnreadableFieldLeavesRecordOnDisk(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()
	stored := `{
  "version": "1.2",
  "name": "Ana",
  "email": "ana@example.com",
  "chat_history": {
    "chat_20240101000000": {
      "title": "Keep me",
      "messages": [{"role": "user", "content": 42}],
      "context": {"text_chunks": [["important", "f.txt"]], "sources": ["f.txt"]}
    },
    "bad-id": {"title": "Rename me", "messages": [], "context": {"text_chunks": [], "sources": []}}
  },
  "last_updated": "2024-01-01T00:00:00Z"
}`
	path := filepath.Join(dir, "ana@example.com.json")
	require.NoError(t, os.WriteFile(path, []byte(stored), 0644))

	p := m.LoadProfile(ctx, "ana@example.com")
	require.Len(t, p.Conversations, 2)
	conv := p.Conversations["chat_20240101000000"]
	require.NotNil(t, conv)
	assert.Equal(t, "Keep me", conv.Title)
	assert.Equal(t, []models.Chunk{{Text: "important", Source: "f.txt"}}, conv.Context.Chunks)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stored, string(data), "lossy migration must not overwrite the stored record")
}
