package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// AuthorUser is the author recorded on messages typed by the human user.
const AuthorUser = "User"

// Message is one entry of a conversation transcript.
// A Message is a value; once appended to a transcript it is never mutated.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a new message with a fresh ID.
func NewMessage(role Role, author, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Author:    author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemMessage creates a system message attributed to author.
func NewSystemMessage(author, content string) Message {
	return NewMessage(RoleSystem, author, content)
}

// NewUserMessage creates a message typed by the user.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, AuthorUser, content)
}

// NewAssistantMessage creates a message produced by a participant.
func NewAssistantMessage(author, content string) Message {
	return NewMessage(RoleAssistant, author, content)
}

// Equal reports whether two messages carry identical fields.
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID &&
		m.Role == other.Role &&
		m.Author == other.Author &&
		m.Content == other.Content &&
		m.CreatedAt.Equal(other.CreatedAt)
}
