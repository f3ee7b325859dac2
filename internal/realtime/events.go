package realtime

// Client-sent event types.
const (
	eventItemCreate     = "conversation.item.create"
	eventResponseCreate = "response.create"
)

// Server-sent event types we consume. Anything else is ignored for forward
// compatibility.
const (
	eventAudioDelta = "response.audio.delta"
	eventAudioDone  = "response.audio.done"
)

type clientEvent struct {
	Type string     `json:"type"`
	Item *eventItem `json:"item,omitempty"`
}

type eventItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type serverEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
}
