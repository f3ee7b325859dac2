// Package models defines the data structures for turn audit events.
package models

// TurnRecorded is emitted after microphone capture completes.
type TurnRecorded struct {
	EventType  string `json:"eventType"`
	TurnID     string `json:"turnId"`
	Principal  string `json:"principal"`
	Timestamp  int64  `json:"timestamp"`
	Path       string `json:"path"`
	SampleRate int    `json:"sampleRate"`
	DurationMs int64  `json:"durationMs"`
}

// TurnRedacted is emitted when the detect job reaches SUCCESS and the
// redacted waveform has been written locally.
type TurnRedacted struct {
	EventType string `json:"eventType"`
	TurnID    string `json:"turnId"`
	Principal string `json:"principal"`
	Timestamp int64  `json:"timestamp"`
	JobID     string `json:"jobId"`
	Polls     int    `json:"polls"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
}

// TurnReply is emitted when the streamed reply has been decoded and saved.
type TurnReply struct {
	EventType string `json:"eventType"`
	TurnID    string `json:"turnId"`
	Principal string `json:"principal"`
	Timestamp int64  `json:"timestamp"`
	Deltas    int    `json:"deltas"`
	PCMBytes  int64  `json:"pcmBytes"`
	Path      string `json:"path"`
}

// Event type names used as Kafka message headers and payload fields.
const (
	EventTurnRecorded = "turn.recorded"
	EventTurnRedacted = "turn.redacted"
	EventTurnReply    = "turn.reply"
)
