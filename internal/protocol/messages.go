package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	WorldID         string `json:"world_id,omitempty"`
	// FollowBot asks for the bot's details in every UPDATE.
	FollowBot string `json:"follow_bot,omitempty"`
	Events    bool   `json:"events,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	WorldID         string     `json:"world_id"`
	FollowBot       string     `json:"follow_bot,omitempty"`
	Events          bool       `json:"events"`
	WorldManifest   []WorldRef `json:"world_manifest,omitempty"`
}

type WorldRef struct {
	WorldID       string `json:"world_id"`
	Name          string `json:"name,omitempty"`
	Theme         string `json:"theme,omitempty"`
	Clock         string `json:"clock"`
	TickRateHz    int    `json:"tick_rate_hz,omitempty"`
	Mode          string `json:"mode,omitempty"`
	MaxAliveBots  int    `json:"max_alive_bots"`
	MaxQueuedBots int    `json:"max_queued_bots"`
	Events        bool   `json:"events"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
	WorldID         string `json:"world_id,omitempty"`
}

// BOT_CREATED is the response body of a firmware upload.
type BotCreatedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	BotID           string `json:"bot_id"`
}
