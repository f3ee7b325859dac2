package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"voice-privacy-pipeline/internal/config"
	"voice-privacy-pipeline/internal/observability/metrics"
)

// Session is one conversation turn over a persistent websocket connection.
// It is not safe for concurrent use; the pipeline drives it sequentially.
type Session struct {
	conn      *websocket.Conn
	lifecycle *Lifecycle
	maxWait   time.Duration
	started   time.Time
	metrics   *metrics.Metrics
}

// Reply is the reassembled model response.
type Reply struct {
	// Accumulated is the concatenation of the raw base64 fragments in
	// delivery order, before decoding.
	Accumulated string
	// PCM is the decoded reply audio in model format.
	PCM []byte
	// Deltas is the number of audio fragments received.
	Deltas int
}

// Dial opens the session. A dial failure is fatal for the turn; there is no
// reconnect.
func Dial(ctx context.Context, cfg config.RealtimeConfig) (*Session, error) {
	lc := NewLifecycle()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		lc.Fail()
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}
	if err := lc.Opened(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("url", cfg.URL).Msg("realtime session connected")

	return &Session{
		conn:      conn,
		lifecycle: lc,
		maxWait:   cfg.MaxWait,
		started:   time.Now(),
		metrics:   metrics.DefaultMetrics,
	}, nil
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// SendUserAudio submits the model-format PCM as a user turn and requests a
// response. The two events must go out in order; the service processes them
// in send order so no acknowledgment is awaited in between.
func (s *Session) SendUserAudio(pcm []byte) error {
	if s.lifecycle.State() != StateOpen {
		return ErrSessionNotOpen
	}

	create := clientEvent{
		Type: eventItemCreate,
		Item: &eventItem{
			Type: "message",
			Role: "user",
			Content: []itemContent{
				{Type: "input_audio", Audio: base64.StdEncoding.EncodeToString(pcm)},
			},
		},
	}
	if err := s.writeJSON(create); err != nil {
		s.lifecycle.Fail()
		return fmt.Errorf("failed to send conversation item: %w", err)
	}

	if err := s.writeJSON(clientEvent{Type: eventResponseCreate}); err != nil {
		s.lifecycle.Fail()
		return fmt.Errorf("failed to request response: %w", err)
	}

	if err := s.lifecycle.TurnSent(); err != nil {
		return err
	}

	log.Info().Int("pcmBytes", len(pcm)).Msg("user turn sent, awaiting reply")
	return nil
}

// CollectReply receives events in delivery order until the service signals
// completion, accumulating audio fragments by pure string concatenation.
// Decoding happens exactly once, at the end.
func (s *Session) CollectReply(ctx context.Context) (*Reply, error) {
	state := s.lifecycle.State()
	if state != StateAwaitingReply && state != StateStreaming {
		return nil, ErrTurnNotSent
	}

	// One deadline bounds the whole reply stream. Zero disables it.
	if s.maxWait > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.maxWait)); err != nil {
			return nil, err
		}
	}

	var accumulated strings.Builder
	deltas := 0

	for {
		if err := ctx.Err(); err != nil {
			s.lifecycle.Fail()
			return nil, err
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.lifecycle.Fail()
			return nil, fmt.Errorf("realtime read failed after %d deltas: %w", deltas, err)
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Warn().Err(err).Msg("skipping unparseable realtime event")
			continue
		}

		switch ev.Type {
		case eventAudioDelta:
			if err := s.lifecycle.DeltaReceived(); err != nil {
				s.lifecycle.Fail()
				return nil, err
			}
			accumulated.WriteString(ev.Delta)
			deltas++
			s.metrics.RecordDelta()

		case eventAudioDone:
			if err := s.lifecycle.Finish(); err != nil {
				return nil, err
			}
			pcm, err := decodeBase64Stream(accumulated.String())
			if err != nil {
				return nil, fmt.Errorf("failed to decode reply audio: %w", err)
			}
			s.metrics.SessionAudioBytes.Add(float64(len(pcm)))
			s.metrics.SessionDuration.Observe(time.Since(s.started).Seconds())
			log.Info().Int("deltas", deltas).Int("pcmBytes", len(pcm)).Msg("reply stream complete")
			return &Reply{Accumulated: accumulated.String(), PCM: pcm, Deltas: deltas}, nil

		default:
			log.Debug().Str("type", ev.Type).Msg("ignoring realtime event")
		}
	}
}

// Close abandons the session. The protocol has no client-initiated cancel;
// closing the connection is the only teardown.
func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// decodeBase64Stream decodes an accumulation of independently encoded
// base64 fragments. Each fragment is padded, so padding may occur anywhere
// in the stream; decoding per 4-byte quantum matches how the fragments were
// produced. An unaligned stream falls back to a single whole-string decode.
func decodeBase64Stream(s string) ([]byte, error) {
	if len(s)%4 != 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	out := make([]byte, 0, len(s)/4*3)
	rest := s
	for len(rest) > 0 {
		// Decode up to and including the next padding run, which is always
		// quantum-aligned for padded input.
		end := strings.IndexByte(rest, '=')
		if end < 0 {
			end = len(rest)
		} else {
			end++
			for end < len(rest) && rest[end] == '=' {
				end++
			}
			if end%4 != 0 {
				end += 4 - end%4
			}
		}
		chunk, err := base64.StdEncoding.DecodeString(rest[:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		rest = rest[end:]
	}
	return out, nil
}
