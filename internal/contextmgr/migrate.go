package contextmgr

import (
	"bytes"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/tanya/internal/chatid"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

const (
	titleLength = 50
	legacyTitle = "Previous Chat"
)

// MigrateConversations converts a raw chat history into canonical conversations.
// A bare message list becomes a new conversation with a fresh id; a structured
// value under a malformed id is re-keyed with its content preserved; canonical
// entries pass through. Fields of the wrong type are skipped and the rest of
// the entry is kept. Values of any other shape are dropped with a warning.
// Applying it to its own encoded output changes nothing.
func (m *Manager) MigrateConversations(raw map[string]json.RawMessage) map[string]*models.Conversation {
	convs, _, _ := m.migrate(raw)
	return convs
}

// migrate reports whether the history changed shape and whether anything was
// lost on the way. A lossy history must not be written back over the original.
func (m *Manager) migrate(raw map[string]json.RawMessage) (out map[string]*models.Conversation, changed, lossy bool) {
	out = make(map[string]*models.Conversation, len(raw))
	taken := func(id string) bool {
		if _, ok := out[id]; ok {
			return true
		}
		_, ok := raw[id]
		return ok
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := bytes.TrimSpace(raw[key])
		if len(value) == 0 {
			m.logger.Warn("dropping empty chat history entry", zap.String("key", key))
			changed, lossy = true, true
			continue
		}
		switch value[0] {
		case '[':
			msgs, bad := models.DecodeMessages(value)
			if len(bad) > 0 {
				m.logger.Warn("skipped unreadable fields in legacy chat",
					zap.String("key", key), zap.Strings("fields", bad))
				lossy = true
			}
			conv := &models.Conversation{
				ID:       chatid.NewUnique(m.now(), taken),
				Title:    legacyConversationTitle(value),
				Messages: msgs,
			}
			conv.Normalize()
			out[conv.ID] = conv
			changed = true
		case '{':
			conv, bad, err := models.DecodeConversation(value)
			if err != nil {
				m.logger.Warn("dropping unreadable chat", zap.String("key", key), zap.Error(err))
				changed, lossy = true, true
				continue
			}
			if len(bad) > 0 {
				m.logger.Warn("skipped unreadable fields in chat",
					zap.String("key", key), zap.Strings("fields", bad))
				lossy = true
			}
			if chatid.Valid(key) {
				conv.ID = key
			} else {
				conv.ID = chatid.NewUnique(m.now(), taken)
				changed = true
			}
			out[conv.ID] = conv
		default:
			m.logger.Warn("dropping chat history entry of unknown shape", zap.String("key", key))
			changed, lossy = true, true
		}
	}
	return out, changed, lossy
}

// legacyConversationTitle derives a title from a bare message list: the first
// message's content when it is a user message, "New Chat" when that message has
// no content, and "Previous Chat" otherwise.
func legacyConversationTitle(list json.RawMessage) string {
	var msgs []map[string]json.RawMessage
	if err := json.Unmarshal(list, &msgs); err != nil || len(msgs) == 0 {
		return legacyTitle
	}
	var role string
	if err := json.Unmarshal(msgs[0]["role"], &role); err != nil || role != models.RoleUser {
		return legacyTitle
	}
	rawContent, ok := msgs[0]["content"]
	if !ok {
		return models.DefaultTitle
	}
	var content string
	if err := json.Unmarshal(rawContent, &content); err != nil {
		return models.DefaultTitle
	}
	return utils.Truncate(content, titleLength)
}
