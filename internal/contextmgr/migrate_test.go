package contextmgr

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/tanya/internal/chatid"
	"github.com/hyperjump/tanya/internal/models"
)

func rawHistory(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func encodeHistory(t *testing.T, convs map[string]*models.Conversation) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(convs))
	for id, c := range convs {
		data, err := json.Marshal(c)
		require.NoError(t, err)
		out[id] = data
	}
	return out
}

func onlyConversation(t *testing.T, convs map[string]*models.Conversation) *models.Conversation {
	t.Helper()
	require.Len(t, convs, 1)
	for _, c := range convs {
		return c
	}
	return nil
}

func TestMigrate_LegacyListTitles(t *testing.T) {
	long := strings.Repeat("x", 51)
	tests := []struct {
		name  string
		list  string
		title string
	}{
		{"short first question", `[{"role":"user","content":"What is Go?"}]`, "What is Go?"},
		{"long first question", `[{"role":"user","content":"` + long + `"}]`, strings.Repeat("x", 50) + "..."},
		{"exactly fifty", `[{"role":"user","content":"` + strings.Repeat("y", 50) + `"}]`, strings.Repeat("y", 50)},
		{"assistant first", `[{"role":"assistant","content":"hello"}]`, "Previous Chat"},
		{"empty list", `[]`, "Previous Chat"},
		{"missing content", `[{"role":"user"}]`, "New Chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t)
			convs := m.MigrateConversations(rawHistory(t, `{"0": `+tt.list+`}`))
			conv := onlyConversation(t, convs)
			assert.Equal(t, tt.title, conv.Title)
			assert.True(t, chatid.Valid(conv.ID))
			assert.Empty(t, conv.Context.Chunks)
			assert.NotNil(t, conv.Context.Sources)
		})
	}
}

func TestMigrate_LegacyListKeepsMessages(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{"0": [
		{"role":"user","content":"q1"},
		{"role":"assistant","content":"a1","sources":["f.pdf"]}
	]}`))
	conv := onlyConversation(t, convs)
	assert.Equal(t, "chat_20240506070809", conv.ID)
	assert.Equal(t, []models.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1", Sources: []string{"f.pdf"}},
	}, conv.Messages)
}

func TestMigrate_MalformedIDPreservesContent(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{"my-chat": {
		"title": "Budget",
		"messages": [{"role":"user","content":"total?"},{"role":"assistant","content":"42"}],
		"context": {"text_chunks": [["row 1", "Table: b.csv"]], "sources": ["b.csv"]}
	}}`))
	conv := onlyConversation(t, convs)
	assert.NotEqual(t, "my-chat", conv.ID)
	assert.True(t, chatid.Valid(conv.ID))
	assert.Equal(t, "Budget", conv.Title)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, []models.Chunk{{Text: "row 1", Source: "Table: b.csv"}}, conv.Context.Chunks)
	assert.Equal(t, []string{"b.csv"}, conv.Context.Sources)
}

func TestMigrate_MalformedIDKeepsEmptyTitle(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{"legacy": {
		"title": "",
		"messages": [{"role":"user","content":"q","rating":5,"meta":{"lang": "en"}}],
		"context": {"text_chunks": [["a","s"]], "sources": ["s"]}
	}}`))
	conv := onlyConversation(t, convs)
	assert.True(t, chatid.Valid(conv.ID))
	assert.Equal(t, "", conv.Title)

	require.Len(t, conv.Messages, 1)
	data, err := json.Marshal(conv.Messages[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"q","rating":5,"meta":{"lang":"en"}}`, string(data))
}

func TestMigrate_SkipsUnreadableFieldsKeepsRest(t *testing.T) {
	m, _ := newManager(t)
	convs, changed, lossy := m.migrate(rawHistory(t, `{"chat_20240101000000": {
		"title": "Keep me",
		"messages": [{"role":"user","content":42}, "junk", {"role":"assistant","content":"a"}],
		"context": {"text_chunks": [["important","f.txt"], []], "sources": ["f.txt", 7]}
	}}`))
	assert.False(t, changed)
	assert.True(t, lossy)

	conv := convs["chat_20240101000000"]
	require.NotNil(t, conv)
	assert.Equal(t, "Keep me", conv.Title)
	assert.Equal(t, []models.Message{
		{Role: "user"},
		{Role: "assistant", Content: "a"},
	}, conv.Messages)
	assert.Equal(t, []models.Chunk{{Text: "important", Source: "f.txt"}}, conv.Context.Chunks)
	assert.Equal(t, []string{"f.txt"}, conv.Context.Sources)
}

func TestMigrate_CanonicalPassesThrough(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{"chat_20230101010101": {"messages": []}}`))
	conv := convs["chat_20230101010101"]
	require.NotNil(t, conv)
	assert.Equal(t, "chat_20230101010101", conv.ID)
	assert.Equal(t, models.DefaultTitle, conv.Title)
	assert.Empty(t, conv.Context.Chunks)
}

func TestMigrate_GeneratedIDsAreUnique(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{
		"a": [{"role":"user","content":"one"}],
		"b": [{"role":"user","content":"two"}],
		"c": {"title": "three"},
		"chat_20240506070810": {"title": "existing"}
	}`))
	require.Len(t, convs, 4)
	assert.Equal(t, "existing", convs["chat_20240506070810"].Title)
	assert.Equal(t, "one", convs["chat_20240506070809"].Title)
	assert.Equal(t, "two", convs["chat_20240506070811"].Title)
	assert.Equal(t, "three", convs["chat_20240506070812"].Title)
}

func TestMigrate_DropsUnknownShapes(t *testing.T) {
	m, _ := newManager(t)
	convs := m.MigrateConversations(rawHistory(t, `{
		"n": 42,
		"s": "text",
		"x": null,
		"chat_20230101010101": {"title": "ok"}
	}`))
	assert.Len(t, convs, 1)
	assert.Contains(t, convs, "chat_20230101010101")
}

func TestMigrate_Idempotent(t *testing.T) {
	m, _ := newManager(t)
	raw := rawHistory(t, `{
		"0": [{"role":"user","content":"legacy question"},{"role":"assistant","content":"answer","sources":[]}],
		"bad id": {"title": "T", "messages": [], "context": {"chunks": [["a","b"]]}},
		"chat_20230101010101": {"title": "Fine", "messages": [{"role":"user","content":"q"}], "context": {"text_chunks": [], "sources": []}}
	}`)
	once := m.MigrateConversations(raw)
	twice := m.MigrateConversations(encodeHistory(t, once))
	assert.Equal(t, once, twice)

	_, changed, lossy := m.migrate(encodeHistory(t, once))
	assert.False(t, changed, "canonical history should not be reported as changed")
	assert.False(t, lossy)
}
