package chat

// Service names registered in the chat module's service container.
const (
	ServiceRoster = "roster"
	ServiceStats  = "stats"
)

// RosterRequest asks for the local roster of a room.
type RosterRequest struct {
	Room string `json:"room"`
}

// StatsRequest asks for the process's connection statistics.
type StatsRequest struct{}

// StatsResponse describes what this process currently holds.
type StatsResponse struct {
	ProcessID       string   `json:"processId"`
	Connections     int      `json:"connections"`
	InRooms         int      `json:"inRooms"`
	Rooms           []string `json:"rooms"`
	SubscribedRooms []string `json:"subscribedRooms"`
	PrivateChannels int      `json:"privateChannels"`
}
