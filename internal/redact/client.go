// Package redact is the client for the hosted PII-detection service. It
// submits a waveform for redaction, polls the job to a terminal state and
// extracts the redacted audio artifact.
package redact

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voice-privacy-pipeline/internal/config"
	"voice-privacy-pipeline/internal/observability/metrics"
)

// Client talks to the detect REST API.
type Client struct {
	cfg        config.DetectConfig
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// New creates a detect client from its configuration.
func New(cfg config.DetectConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		metrics:    metrics.DefaultMetrics,
	}
}

// Submit uploads the WAV file at path as a base64 payload and returns the
// job handle parsed from the response's status_url.
func (c *Client) Submit(ctx context.Context, path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	payload := submitRequest{
		File:       base64.StdEncoding.EncodeToString(data),
		DataFormat: "wav",
		Audio: audioOptions{
			OutputProcessedAudio: true,
			Options: bleepOptions{
				BleepGain:         c.cfg.BleepGain,
				BleepStartPadding: c.cfg.BleepStartPadding,
				BleepStopPadding:  c.cfg.BleepStopPadding,
			},
		},
		Accuracy:            "high_multilingual",
		RestrictEntityTypes: c.cfg.EntityTypes,
		InputType:           "BASE64",
		VaultID:             c.cfg.VaultID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/detect/file", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-skyflow-account-id", c.cfg.AccountID)
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)

	c.metrics.DetectSubmits.Inc()

	var resp submitResponse
	if err := c.do(req, "submit", &resp); err != nil {
		return nil, err
	}

	if resp.StatusURL == "" {
		return nil, ErrMissingStatusURL
	}

	// The trailing path segment is the opaque job identifier.
	parts := strings.Split(strings.TrimRight(resp.StatusURL, "/"), "/")
	job := &Job{ID: parts[len(parts)-1], StatusURL: resp.StatusURL}

	log.Info().Str("jobId", job.ID).Msg("redaction job submitted")
	return job, nil
}

// Poll fetches one status snapshot for the job.
func (c *Client) Poll(ctx context.Context, jobID string) (*StatusResponse, error) {
	u := fmt.Sprintf("%s/v1/detect/status/%s?vault_id=%s", c.cfg.BaseURL, jobID, url.QueryEscape(c.cfg.VaultID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)

	c.metrics.RecordPoll()

	var resp StatusResponse
	if err := c.do(req, "status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Await polls the job until it reaches a terminal state and returns the
// final snapshot plus the number of polls issued. The interval starts at
// PollInterval and is multiplied by PollBackoff after each attempt;
// PollMaxWait bounds the total wait (0 waits forever). FAILED comes back
// as a *JobError.
func (c *Client) Await(ctx context.Context, jobID string) (*StatusResponse, int, error) {
	start := time.Now()
	interval := c.cfg.PollInterval
	polls := 0

	var cancel context.CancelFunc
	if c.cfg.PollMaxWait > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PollMaxWait)
		defer cancel()
	}

	for {
		status, err := c.Poll(ctx, jobID)
		if err != nil {
			return nil, polls + 1, err
		}
		polls++

		switch status.Status {
		case StatusSuccess:
			c.metrics.DetectJobDuration.Observe(time.Since(start).Seconds())
			log.Info().Str("jobId", jobID).Int("polls", polls).Msg("redaction job finished")
			return status, polls, nil
		case StatusFailed:
			c.metrics.DetectJobsFailed.Inc()
			c.metrics.DetectJobDuration.Observe(time.Since(start).Seconds())
			return nil, polls, &JobError{JobID: jobID, Status: status.Status}
		}

		log.Debug().
			Str("jobId", jobID).
			Str("status", status.Status).
			Dur("nextPollIn", interval).
			Msg("redaction job still processing")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, polls, fmt.Errorf("gave up waiting for job %s after %d polls: %w", jobID, polls, ctx.Err())
		case <-timer.C:
		}

		if c.cfg.PollBackoff > 1 {
			interval = time.Duration(float64(interval) * c.cfg.PollBackoff)
		}
	}
}

// ExtractRedactedAudio returns the decoded redacted_audio artifact from a
// SUCCESS snapshot. A SUCCESS snapshot without that artifact is malformed.
func ExtractRedactedAudio(status *StatusResponse) ([]byte, error) {
	for _, out := range status.Output {
		if out.ProcessedFileType != processedTypeRedactedAudio {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(out.ProcessedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to decode redacted audio: %w", err)
		}
		return data, nil
	}
	return nil, ErrNoRedactedAudio
}

// SaveRedactedAudio extracts the redacted audio and writes it to path,
// overwriting any prior content.
func SaveRedactedAudio(status *StatusResponse, path string) (int64, error) {
	data, err := ExtractRedactedAudio(status)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return int64(len(data)), nil
}

// do executes the request and decodes the JSON response into out. Non-2xx
// responses are logged with their body and returned as *HTTPError.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detect %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read detect %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.RecordHTTPError(endpoint)
		log.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("detect request rejected")
		return &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode detect %s response: %w", endpoint, err)
	}
	return nil
}
