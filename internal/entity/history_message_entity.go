package entity

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// HistoryMessage is one entry of the in-memory chat history used to condition the model.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
