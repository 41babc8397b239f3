package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DecodeConversation decodes a stored conversation object field by field.
// Everything that parses is kept, an absent title becomes DefaultTitle, and
// values of the wrong type are skipped. The returned list names what was
// skipped. An error means data is not a JSON object.
func DecodeConversation(data []byte) (*Conversation, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, nil, err
	}
	conv := &Conversation{Title: DefaultTitle}
	var bad []string
	if raw, ok := fields["title"]; ok {
		if err := json.Unmarshal(raw, &conv.Title); err != nil {
			bad = append(bad, "title")
		}
	}
	if raw, ok := fields["messages"]; ok {
		msgs, skipped := DecodeMessages(raw)
		conv.Messages = msgs
		bad = append(bad, skipped...)
	}
	if raw, ok := fields["context"]; ok {
		ctx, skipped := decodeContext(raw)
		conv.Context = ctx
		bad = append(bad, skipped...)
	}
	conv.Normalize()
	return conv, bad, nil
}

// DecodeMessages decodes a message list, keeping every message that is an
// object and reporting the fields and entries it could not read.
func DecodeMessages(data []byte) ([]Message, []string) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, []string{"messages"}
	}
	var bad []string
	msgs := make([]Message, 0, len(items))
	for i, item := range items {
		msg, fields, err := DecodeMessage(item)
		if err != nil {
			bad = append(bad, fmt.Sprintf("messages[%d]", i))
			continue
		}
		for _, f := range fields {
			bad = append(bad, fmt.Sprintf("messages[%d].%s", i, f))
		}
		msgs = append(msgs, msg)
	}
	return msgs, bad
}

// DecodeMessage decodes one message object. Known fields with the wrong type
// are left empty and named in the returned list; unknown keys go to Extra.
func DecodeMessage(data []byte) (Message, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, nil, fmt.Errorf("invalid message: %w", err)
	}
	if fields == nil {
		return Message{}, nil, fmt.Errorf("invalid message: null")
	}
	var msg Message
	var bad []string
	for key, raw := range fields {
		var err error
		switch key {
		case "role":
			err = json.Unmarshal(raw, &msg.Role)
		case "content":
			err = json.Unmarshal(raw, &msg.Content)
		case "sources":
			err = json.Unmarshal(raw, &msg.Sources)
		default:
			var buf bytes.Buffer
			if cerr := json.Compact(&buf, raw); cerr != nil {
				err = cerr
				break
			}
			if msg.Extra == nil {
				msg.Extra = make(map[string]json.RawMessage)
			}
			msg.Extra[key] = buf.Bytes()
		}
		if err != nil {
			bad = append(bad, key)
		}
	}
	sort.Strings(bad)
	return msg, bad, nil
}

func decodeContext(data []byte) (Context, []string) {
	var ctx Context
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ctx, []string{"context"}
	}
	var bad []string
	key := "text_chunks"
	raw, ok := fields[key]
	if !ok {
		key = "chunks"
		raw, ok = fields[key]
	}
	if ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			bad = append(bad, "context."+key)
		}
		for i, item := range items {
			var c Chunk
			if err := json.Unmarshal(item, &c); err != nil {
				bad = append(bad, fmt.Sprintf("context.%s[%d]", key, i))
				continue
			}
			ctx.Chunks = append(ctx.Chunks, c)
		}
	}
	if raw, ok := fields["sources"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			bad = append(bad, "context.sources")
		}
		for i, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				bad = append(bad, fmt.Sprintf("context.sources[%d]", i))
				continue
			}
			ctx.Sources = append(ctx.Sources, s)
		}
	}
	return ctx, bad
}
