// Package models defines the data structures shared across the context
// indexing, retrieval, persistence, and API layers.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTitle is the title given to freshly created conversations.
const DefaultTitle = "New Chat"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is a contiguous span of extracted text plus the label of where it came from.
// It is stored on disk as a two-element array: ["text", "source"].
type Chunk struct {
	Text   string
	Source string
}

// MarshalJSON encodes the chunk as [text, source].
func (c Chunk) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Text, c.Source})
}

// UnmarshalJSON accepts [text, source], [text], or {"text": ..., "source": ...}.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		switch len(pair) {
		case 0:
			return fmt.Errorf("empty chunk")
		case 1:
			*c = Chunk{Text: pair[0]}
		default:
			*c = Chunk{Text: pair[0], Source: pair[1]}
		}
		return nil
	}
	var obj struct {
		Text   string `json:"text"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid chunk: %w", err)
	}
	*c = Chunk{Text: obj.Text, Source: obj.Source}
	return nil
}

// Message is one turn of a conversation. Keys other than role, content and
// sources are kept in Extra and written back as they were read.
type Message struct {
	Role    string                     `json:"role"`
	Content string                     `json:"content"`
	Sources []string                   `json:"sources,omitempty"`
	Extra   map[string]json.RawMessage `json:"-"`
}

type plainMessage Message

// MarshalJSON encodes the known fields merged over Extra.
func (m Message) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plainMessage(m))
	if err != nil || len(m.Extra) == 0 {
		return data, err
	}
	fields := make(map[string]json.RawMessage, len(m.Extra)+3)
	for k, v := range m.Extra {
		fields[k] = v
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a message object and fails if a known field has the
// wrong type.
func (m *Message) UnmarshalJSON(data []byte) error {
	msg, bad, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid message fields: %s", strings.Join(bad, ", "))
	}
	*m = msg
	return nil
}

// Context is the accumulated evidence of a conversation: its chunk store and
// the ordered list of source labels that were ingested.
type Context struct {
	Chunks  []Chunk  `json:"text_chunks"`
	Sources []string `json:"sources"`
}

// UnmarshalJSON accepts both "text_chunks" and the shorter "chunks" key.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw struct {
		TextChunks []Chunk  `json:"text_chunks"`
		Chunks     []Chunk  `json:"chunks"`
		Sources    []string `json:"sources"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Chunks = raw.TextChunks
	if c.Chunks == nil {
		c.Chunks = raw.Chunks
	}
	c.Sources = raw.Sources
	return nil
}

// Conversation is a titled, ordered exchange plus its accumulated context.
// The ID is the key in the owning profile's conversation map and is not part
// of the encoded value.
type Conversation struct {
	ID       string    `json:"-"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Context  Context   `json:"context"`
}

// NewConversation returns an empty conversation with the default title.
func NewConversation(id string) *Conversation {
	c := &Conversation{ID: id, Title: DefaultTitle}
	c.Normalize()
	return c
}

// Normalize fills missing fields so that encoded and decoded forms compare equal:
// nil slices become empty and empty per-message source lists become nil. The
// title is left alone.
func (c *Conversation) Normalize() {
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	for i := range c.Messages {
		if len(c.Messages[i].Sources) == 0 {
			c.Messages[i].Sources = nil
		}
	}
	if c.Context.Chunks == nil {
		c.Context.Chunks = []Chunk{}
	}
	if c.Context.Sources == nil {
		c.Context.Sources = []string{}
	}
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{ID: c.ID, Title: c.Title}
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m
		if m.Sources != nil {
			out.Messages[i].Sources = append([]string(nil), m.Sources...)
		}
		if m.Extra != nil {
			out.Messages[i].Extra = make(map[string]json.RawMessage, len(m.Extra))
			for k, v := range m.Extra {
				out.Messages[i].Extra[k] = append(json.RawMessage(nil), v...)
			}
		}
	}
	out.Context.Chunks = append(make([]Chunk, 0, len(c.Context.Chunks)), c.Context.Chunks...)
	out.Context.Sources = append(make([]string, 0, len(c.Context.Sources)), c.Context.Sources...)
	return out
}

// Summary returns the listing view of the conversation.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:       c.ID,
		Title:    c.Title,
		Messages: len(c.Messages),
		Chunks:   len(c.Context.Chunks),
		Sources:  append([]string{}, c.Context.Sources...),
	}
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Messages int      `json:"messages"`
	Chunks   int      `json:"chunks"`
	Sources  []string `json:"sources"`
}
