package history

import "github.com/example/relay-chat/domain/chat"

// Service names registered in the history module's service container.
const (
	ServiceAppend = "append"
	ServiceRecent = "recent"
	ServicePage   = "page"
)

// AppendRequest adds one entry to a room's log.
type AppendRequest struct {
	Room    string       `json:"room"`
	Message chat.Message `json:"message"`
}

// AppendResponse reports the room's log length after the append.
type AppendResponse struct {
	Room   string `json:"room"`
	Length int    `json:"length"`
}

// RecentRequest asks for the most recent entries of a room.
type RecentRequest struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

// PageRequest asks for a page of older entries of a room.
type PageRequest struct {
	Room   string `json:"room"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// MessagesResponse carries a batch of entries, oldest first.
type MessagesResponse struct {
	Room     string         `json:"room"`
	Messages []chat.Message `json:"messages"`
}
