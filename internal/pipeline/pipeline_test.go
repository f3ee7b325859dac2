package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-privacy-pipeline/internal/audio"
	"voice-privacy-pipeline/internal/config"
	"voice-privacy-pipeline/internal/realtime"
	"voice-privacy-pipeline/internal/redact"
)

// fakeRecorder writes a generated waveform instead of touching a microphone.
type fakeRecorder struct {
	path string
}

func (f *fakeRecorder) Record(_ context.Context, duration time.Duration, sampleRate int) (string, error) {
	n := int(duration.Seconds() * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	w := &audio.Waveform{SampleRate: sampleRate, Channels: 1, Samples: samples}
	if err := audio.WriteWAVFile(f.path, w); err != nil {
		return "", err
	}
	return f.path, nil
}

// detectServer fakes the redaction service: one PENDING poll, then SUCCESS
// carrying the submitted audio back as the redacted artifact.
func detectServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	var submitted string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/detect/file", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("submit decode: %v", err)
		}
		submitted, _ = req["file"].(string)
		json.NewEncoder(w).Encode(map[string]string{
			"status_url": "https://detect.example/v1/detect/status/job-123",
		})
	})
	mux.HandleFunc("GET /v1/detect/status/job-123", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]string{"status": "IN_PROGRESS"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "SUCCESS",
			"output": []map[string]string{
				{"processedFileType": "transcription", "processedFile": "ignored"},
				{"processedFileType": "redacted_audio", "processedFile": submitted},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

// replyServer fakes the realtime endpoint, echoing a fixed PCM reply split
// into independently encoded fragments.
func replyServer(t *testing.T, replyPCM []byte, fragments int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.Errorf("server read: %v", err)
				return
			}
		}

		chunk := (len(replyPCM) + fragments - 1) / fragments
		for off := 0; off < len(replyPCM); off += chunk {
			end := off + chunk
			if end > len(replyPCM) {
				end = len(replyPCM)
			}
			msg, _ := json.Marshal(map[string]string{
				"type":  "response.audio.delta",
				"delta": base64.StdEncoding.EncodeToString(replyPCM[off:end]),
			})
			conn.WriteMessage(websocket.TextMessage, msg)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.audio.done"}`))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, detectURL, realtimeURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Service: config.ServiceConfig{Principal: "test"},
		Detect: config.DetectConfig{
			BaseURL:      detectURL,
			BearerToken:  "tok",
			AccountID:    "acct",
			VaultID:      "vault",
			PollInterval: 5 * time.Millisecond,
			PollBackoff:  1.0,
			PollMaxWait:  5 * time.Second,
			EntityTypes:  config.DefaultEntityTypes,
		},
		Realtime: config.RealtimeConfig{
			URL:     realtimeURL,
			APIKey:  "key",
			MaxWait: 5 * time.Second,
		},
		Record: config.RecordConfig{
			Duration:   200 * time.Millisecond,
			SampleRate: 44100,
		},
		Files: config.FilesFor(dir),
	}
}

func TestRunTurnEndToEnd(t *testing.T) {
	detect, polls := detectServer(t)

	// Reply PCM: 24kHz mono 16-bit, 100ms worth, split over three deltas.
	replyPCM := make([]byte, audio.ModelSampleRate/10*audio.ModelSampleBytes)
	for i := range replyPCM {
		replyPCM[i] = byte(i)
	}
	rt := replyServer(t, replyPCM, 3)

	cfg := testConfig(t, detect.URL, "ws"+strings.TrimPrefix(rt.URL, "http"))
	p := New(cfg, nil)
	p.recorder = &fakeRecorder{path: cfg.Files.Input}

	result, err := p.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if result.JobID != "job-123" {
		t.Errorf("jobID = %q", result.JobID)
	}
	if got := polls.Load(); got != 2 {
		t.Errorf("polls = %d, want 2", got)
	}
	if result.Polls != 2 {
		t.Errorf("result.Polls = %d, want 2", result.Polls)
	}
	if result.Deltas != 3 {
		t.Errorf("deltas = %d, want 3", result.Deltas)
	}

	// The saved reply must be in model format regardless of the input rate.
	reply, err := audio.ReadWAVFile(cfg.Files.Reply)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.SampleRate != audio.ModelSampleRate {
		t.Errorf("reply sample rate = %d, want %d", reply.SampleRate, audio.ModelSampleRate)
	}
	if reply.Channels != audio.ModelChannels {
		t.Errorf("reply channels = %d, want %d", reply.Channels, audio.ModelChannels)
	}
	if len(reply.Samples) != len(replyPCM)/audio.ModelSampleBytes {
		t.Errorf("reply samples = %d, want %d", len(reply.Samples), len(replyPCM)/audio.ModelSampleBytes)
	}

	// All three artifacts sit at their fixed paths.
	for _, path := range []string{cfg.Files.Input, cfg.Files.Redacted, cfg.Files.Reply} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}
}

func TestRunTurnAbortsOnFailedJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/detect/file", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status_url": "https://detect.example/v1/detect/status/job-err",
		})
	})
	mux.HandleFunc("GET /v1/detect/status/job-err", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "FAILED"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var dialed bool
	cfg := testConfig(t, srv.URL, "ws://unused.invalid")
	p := New(cfg, nil)
	p.recorder = &fakeRecorder{path: cfg.Files.Input}
	p.dial = func(ctx context.Context, rc config.RealtimeConfig) (*realtime.Session, error) {
		dialed = true
		return nil, fmt.Errorf("should not dial")
	}

	_, err := p.RunTurn(context.Background())
	var jobErr *redact.JobError
	if err == nil || !errors.As(err, &jobErr) {
		t.Fatalf("expected JobError, got %v", err)
	}
	if dialed {
		t.Error("realtime dial should not happen after a failed job")
	}
	if _, statErr := os.Stat(cfg.Files.Reply); statErr == nil {
		t.Error("reply artifact should not exist after a failed job")
	}
}

func TestRunTurnRecorderFailure(t *testing.T) {
	cfg := testConfig(t, "http://unused.invalid", "ws://unused.invalid")
	p := New(cfg, nil)
	p.recorder = &failingRecorder{}

	if _, err := p.RunTurn(context.Background()); err == nil {
		t.Fatal("expected recorder error to abort the turn")
	}
	if _, err := os.Stat(filepath.Join(cfg.Files.Dir, "processed_output.wav")); err == nil {
		t.Error("no downstream artifact should exist")
	}
}

type failingRecorder struct{}

func (f *failingRecorder) Record(context.Context, time.Duration, int) (string, error) {
	return "", fmt.Errorf("device busy")
}
