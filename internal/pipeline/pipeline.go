// Package pipeline orchestrates one voice turn: capture, PII redaction,
// transcode, realtime exchange, and reply persistence.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voice-privacy-pipeline/internal/audio"
	"voice-privacy-pipeline/internal/capture"
	"voice-privacy-pipeline/internal/config"
	"voice-privacy-pipeline/internal/events"
	"voice-privacy-pipeline/internal/models"
	"voice-privacy-pipeline/internal/observability/logging"
	"voice-privacy-pipeline/internal/observability/metrics"
	"voice-privacy-pipeline/internal/realtime"
	"voice-privacy-pipeline/internal/redact"
)

// Stage names, used in logs and metrics labels.
const (
	StageRecord    = "record"
	StageRedact    = "redact"
	StageTranscode = "transcode"
	StageStream    = "stream"
)

// Pipeline runs voice turns end to end. Stages execute sequentially and the
// first failure aborts the turn; intermediate artifacts are left on disk for
// inspection and overwritten on the next run.
type Pipeline struct {
	cfg       *config.Config
	recorder  capture.Recorder
	detect    *redact.Client
	publisher *events.Publisher
	metrics   *metrics.Metrics

	// dial is swappable for tests.
	dial func(ctx context.Context, cfg config.RealtimeConfig) (*realtime.Session, error)
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	TurnID    string
	JobID     string
	Polls     int
	Deltas    int
	ReplyPath string
	ReplySecs float64
	Elapsed   time.Duration
}

// New builds a pipeline from configuration with a real ffmpeg recorder.
func New(cfg *config.Config, publisher *events.Publisher) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		recorder:  capture.NewFFmpeg(cfg.Record.InputFormat, cfg.Record.Device, cfg.Files.Input),
		detect:    redact.New(cfg.Detect),
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
		dial:      realtime.Dial,
	}
}

// RunTurn executes one full turn and writes the reply waveform to the
// configured reply path.
func (p *Pipeline) RunTurn(ctx context.Context) (*TurnResult, error) {
	turnID := uuid.New().String()
	logger := logging.WithTurn(turnID)
	started := time.Now()

	logger.Info().Msg("starting voice turn")

	result := &TurnResult{TurnID: turnID}
	if err := p.runStages(ctx, turnID, result); err != nil {
		p.metrics.RecordTurn("error")
		logger.Error().Err(err).Msg("turn failed")
		return nil, err
	}

	result.Elapsed = time.Since(started)
	p.metrics.RecordTurn("success")
	logger.Info().
		Dur("elapsed", result.Elapsed).
		Str("replyPath", result.ReplyPath).
		Msg("turn complete")
	return result, nil
}

func (p *Pipeline) runStages(ctx context.Context, turnID string, result *TurnResult) error {
	inputPath, err := p.record(ctx, turnID)
	if err != nil {
		return err
	}

	if err := p.redactAudio(ctx, turnID, inputPath, result); err != nil {
		return err
	}

	pcm, err := p.transcode(turnID)
	if err != nil {
		return err
	}

	return p.stream(ctx, turnID, pcm, result)
}

// record captures a clip from the microphone into the input path.
func (p *Pipeline) record(ctx context.Context, turnID string) (string, error) {
	logger := logging.WithStage(turnID, StageRecord)
	start := time.Now()

	logger.Info().
		Dur("duration", p.cfg.Record.Duration).
		Int("sampleRate", p.cfg.Record.SampleRate).
		Msg("recording")

	path, err := p.recorder.Record(ctx, p.cfg.Record.Duration, p.cfg.Record.SampleRate)
	if err != nil {
		return "", fmt.Errorf("record stage: %w", err)
	}

	p.metrics.RecordStage(StageRecord, time.Since(start).Seconds())
	p.metrics.RecordedSeconds.Add(p.cfg.Record.Duration.Seconds())
	logger.Info().Str("path", path).Msg("recording saved")

	p.publishEvent(ctx, models.EventTurnRecorded, turnID, models.TurnRecorded{
		EventType:  models.EventTurnRecorded,
		TurnID:     turnID,
		Principal:  p.cfg.Service.Principal,
		Timestamp:  time.Now().UnixMilli(),
		Path:       path,
		SampleRate: p.cfg.Record.SampleRate,
		DurationMs: p.cfg.Record.Duration.Milliseconds(),
	})
	return path, nil
}

// redactAudio submits the clip, waits the job out, and writes the redacted
// waveform to the redacted path.
func (p *Pipeline) redactAudio(ctx context.Context, turnID, inputPath string, result *TurnResult) error {
	logger := logging.WithStage(turnID, StageRedact)
	start := time.Now()

	job, err := p.detect.Submit(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("redact stage: %w", err)
	}
	result.JobID = job.ID
	logger.Info().Str("jobId", job.ID).Msg("detect job submitted")

	status, polls, err := p.detect.Await(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("redact stage: %w", err)
	}
	result.Polls = polls

	written, err := redact.SaveRedactedAudio(status, p.cfg.Files.Redacted)
	if err != nil {
		return fmt.Errorf("redact stage: %w", err)
	}

	p.metrics.RecordStage(StageRedact, time.Since(start).Seconds())
	logger.Info().
		Int("polls", polls).
		Int64("bytes", written).
		Str("path", p.cfg.Files.Redacted).
		Msg("redacted audio saved")

	p.publishEvent(ctx, models.EventTurnRedacted, turnID, models.TurnRedacted{
		EventType: models.EventTurnRedacted,
		TurnID:    turnID,
		Principal: p.cfg.Service.Principal,
		Timestamp: time.Now().UnixMilli(),
		JobID:     job.ID,
		Polls:     polls,
		Path:      p.cfg.Files.Redacted,
		Bytes:     written,
	})
	return nil
}

// transcode loads the redacted waveform and converts it to model-format PCM.
func (p *Pipeline) transcode(turnID string) ([]byte, error) {
	logger := logging.WithStage(turnID, StageTranscode)
	start := time.Now()

	waveform, err := audio.ReadWAVFile(p.cfg.Files.Redacted)
	if err != nil {
		return nil, fmt.Errorf("transcode stage: %w", err)
	}

	pcm, err := audio.ToModelFormat(waveform)
	if err != nil {
		return nil, fmt.Errorf("transcode stage: %w", err)
	}

	p.metrics.RecordStage(StageTranscode, time.Since(start).Seconds())
	logger.Info().
		Int("inSampleRate", waveform.SampleRate).
		Int("inChannels", waveform.Channels).
		Int("pcmBytes", len(pcm)).
		Msg("transcoded to model format")
	return pcm, nil
}

// stream runs the realtime exchange and persists the decoded reply.
func (p *Pipeline) stream(ctx context.Context, turnID string, pcm []byte, result *TurnResult) error {
	logger := logging.WithStage(turnID, StageStream)
	start := time.Now()

	session, err := p.dial(ctx, p.cfg.Realtime)
	if err != nil {
		return fmt.Errorf("stream stage: %w", err)
	}
	defer session.Close()

	if err := session.SendUserAudio(pcm); err != nil {
		return fmt.Errorf("stream stage: %w", err)
	}

	reply, err := session.CollectReply(ctx)
	if err != nil {
		return fmt.Errorf("stream stage: %w", err)
	}

	replyWave, err := audio.FromModelFormat(reply.PCM)
	if err != nil {
		return fmt.Errorf("stream stage: %w", err)
	}
	if err := audio.WriteWAVFile(p.cfg.Files.Reply, replyWave); err != nil {
		return fmt.Errorf("stream stage: %w", err)
	}

	result.Deltas = reply.Deltas
	result.ReplyPath = p.cfg.Files.Reply
	result.ReplySecs = replyWave.Duration()

	p.metrics.RecordStage(StageStream, time.Since(start).Seconds())
	logger.Info().
		Int("deltas", reply.Deltas).
		Float64("replySeconds", replyWave.Duration()).
		Str("path", p.cfg.Files.Reply).
		Msg("reply saved")

	p.publishEvent(ctx, models.EventTurnReply, turnID, models.TurnReply{
		EventType: models.EventTurnReply,
		TurnID:    turnID,
		Principal: p.cfg.Service.Principal,
		Timestamp: time.Now().UnixMilli(),
		Deltas:    reply.Deltas,
		PCMBytes:  int64(len(reply.PCM)),
		Path:      p.cfg.Files.Reply,
	})
	return nil
}

// publishEvent emits an audit event. Audit failures never fail the turn.
func (p *Pipeline) publishEvent(ctx context.Context, eventType, turnID string, event any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, turnID, event); err != nil {
		logger := logging.WithTurn(turnID)
		logger.Warn().
			Err(err).
			Str("eventType", eventType).
			Msg("audit publish failed")
	}
}
