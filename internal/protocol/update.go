package protocol

// UPDATE (server -> client): one per published snapshot, possibly
// skipping intermediate ones.
type UpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
	Version         uint64 `json:"version"`
	Paused          bool   `json:"paused"`

	Map    MapObs            `json:"map"`
	Alive  []AliveBotObs     `json:"alive"`
	Dead   []DeadBotObs      `json:"dead"`
	Queued []QueuedBotObs    `json:"queued"`
	Scores map[string]uint64 `json:"scores,omitempty"`

	Bot *BotObs `json:"bot,omitempty"`
}

// MapEncodingRLE is base64 over (packed tile, run length) uvarint pairs.
const MapEncodingRLE = "RLE"

type MapObs struct {
	Size     [2]int `json:"size"`
	Encoding string `json:"encoding"`
	Tiles    string `json:"tiles"`
}

type AliveBotObs struct {
	ID  string `json:"id"`
	Pos [2]int `json:"pos"`
	Dir string `json:"dir"`
	Age uint64 `json:"age"`
}

type DeadBotObs struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Killer string `json:"killer,omitempty"`
}

type QueuedBotObs struct {
	ID       string `json:"id"`
	Place    int    `json:"place"`
	Requeued bool   `json:"requeued"`
}

// BotObs describes the followed bot.
type BotObs struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Pos      *[2]int `json:"pos,omitempty"`
	Dir      string  `json:"dir,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Killer   string  `json:"killer,omitempty"`
	Place    int     `json:"place,omitempty"`
	Requeued bool    `json:"requeued,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
	Event           string `json:"event"`
	Data            any    `json:"data"`
}
