package domain

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
