package models

import (
	"encoding/json"
	"time"
)

// ProfileVersion is written into every persisted profile record.
const ProfileVersion = "1.2"

// UserProfile is the in-memory view of one user's data. Email is the key.
type UserProfile struct {
	Email         string
	Name          string
	Conversations map[string]*Conversation
	LastUpdated   time.Time
}

// NewUserProfile returns an empty profile for email.
func NewUserProfile(email string) *UserProfile {
	return &UserProfile{
		Email:         email,
		Conversations: make(map[string]*Conversation),
	}
}

// ProfileRecord is the persisted shape of a user profile. ChatHistory values are
// kept raw so that legacy shapes can be migrated after decoding.
type ProfileRecord struct {
	Version     string                     `json:"version"`
	Name        string                     `json:"name"`
	Email       string                     `json:"email"`
	ChatHistory map[string]json.RawMessage `json:"chat_history"`
	LastUpdated string                     `json:"last_updated"`
}
