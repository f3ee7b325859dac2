package redact

import (
	"errors"
	"fmt"
)

// Job statuses reported by the detect service. Anything else is treated as
// still pending.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// processedTypeRedactedAudio keys the artifact we extract from a finished
// job; other artifact types are discarded.
const processedTypeRedactedAudio = "redacted_audio"

type submitRequest struct {
	File                string       `json:"file"`
	DataFormat          string       `json:"data_format"`
	Audio               audioOptions `json:"audio"`
	Accuracy            string       `json:"accuracy"`
	RestrictEntityTypes []string     `json:"restrict_entity_types"`
	InputType           string       `json:"input_type"`
	VaultID             string       `json:"vault_id"`
}

type audioOptions struct {
	OutputProcessedAudio bool         `json:"output_processed_audio"`
	Options              bleepOptions `json:"options"`
}

type bleepOptions struct {
	BleepGain         int `json:"bleep_gain"`
	BleepStartPadding int `json:"bleep_start_padding"`
	BleepStopPadding  int `json:"bleep_stop_padding"`
}

type submitResponse struct {
	StatusURL string `json:"status_url"`
}

// Job identifies a submitted redaction job. Only the identifier is held
// locally; the job state lives on the service between polls.
type Job struct {
	ID        string
	StatusURL string
}

// StatusResponse is one status snapshot of a redaction job.
type StatusResponse struct {
	Status string        `json:"status"`
	Output []OutputEntry `json:"output"`
}

// OutputEntry is one artifact of a finished job, keyed by type.
type OutputEntry struct {
	ProcessedFileType string `json:"processedFileType"`
	ProcessedFile     string `json:"processedFile"` // base64
}

// HTTPError is a non-2xx response from either detect endpoint.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("detect %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// JobError is a job that reached the FAILED terminal state.
type JobError struct {
	JobID  string
	Status string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("redaction job %s terminated with status %s", e.JobID, e.Status)
}

// ErrNoRedactedAudio is returned when a SUCCESS status carries no
// redacted_audio artifact. A job that succeeded without producing one is
// malformed, not empty.
var ErrNoRedactedAudio = errors.New("detect status is SUCCESS but no redacted_audio output entry is present")

// ErrMissingStatusURL is returned when the submit response carries no
// status_url to poll.
var ErrMissingStatusURL = errors.New("detect submit response has no status_url")
