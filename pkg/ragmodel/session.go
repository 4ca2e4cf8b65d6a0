package ragmodel

import "time"

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a Session's ordered log.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversation-state identity. The Conversation Store owns
// the message slice exclusively; callers only ever see copies.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionControlCommands are the reserved tokens that reset session state
// instead of being routed to retrieval (spec §3, §4.8).
var SessionControlCommands = map[string]bool{
	"/new":   true,
	"/reset": true,
	"/clear": true,
}

func IsSessionControlCommand(text string) bool {
	return SessionControlCommands[text]
}
