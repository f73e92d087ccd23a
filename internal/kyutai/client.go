package kyutai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/audio"
	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/eleven-am/meeting-scribe/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second

	defaultFrameQueueCapacity = 256
)

// Config wires one per-speaker streaming connection.
type Config struct {
	ServerURL  string
	APIKey     string
	SampleRate int

	SpeakerID string
	Speaker   intake.ParticipantMetadata

	Backoff    shared.BackoffConfig
	Boundaries BoundaryConfig

	// FrameQueueCapacity bounds outbound frames awaiting paced send.
	FrameQueueCapacity int

	// OnUtterance receives each assembled utterance. Callers route it
	// through the sequential persistence queue.
	OnUtterance func(Result)

	Log *slog.Logger
}

// Transcriber is a reconnecting streaming connection for one speaker. It
// satisfies the pool's Transcriber contract: Send queues audio without
// blocking, Finish is idempotent and never stalls the caller on socket
// teardown.
type Transcriber struct {
	cfg     Config
	backoff shared.BackoffConfig
	log     *slog.Logger
	asm     *assembler

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	ws           *websocket.Conn
	connected    bool
	reconnecting bool
	stopped      bool
	permanent    bool
	lastSend     time.Time
	pending      []float32

	// wmu serializes socket writes between the paced sender and the
	// fire-and-continue teardown path.
	wmu sync.Mutex

	frames     chan []byte
	finishOnce sync.Once
}

func New(cfg Config) (*Transcriber, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("kyutai: server URL required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameQueueCapacity <= 0 {
		cfg.FrameQueueCapacity = defaultFrameQueueCapacity
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Transcriber{
		cfg:          cfg,
		backoff:      shared.NormalizeBackoff(cfg.Backoff),
		log:          cfg.Log.With("component", "kyutai_transcriber", "speaker_id", cfg.SpeakerID),
		ctx:          ctx,
		cancel:       cancel,
		reconnecting: true,
		lastSend:     time.Now(),
		frames:       make(chan []byte, cfg.FrameQueueCapacity),
	}
	t.asm = newAssembler(cfg.Boundaries, t.emit)

	go t.run()
	return t, nil
}

func (t *Transcriber) emit(r Result) {
	t.log.Debug("emitting utterance",
		"words", r.WordCount,
		"duration_ms", r.DurationMS,
		"reason", r.FlushReason)
	if t.cfg.OnUtterance != nil {
		t.cfg.OnUtterance(r)
	}
}

// Send queues PCM for paced transmission. During reconnection attempts
// audio is dropped silently; once the retry window is exhausted it returns
// shared.ErrConnectionFailed so the owning pool can evict.
func (t *Transcriber) Send(pcm []byte) error {
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	if t.permanent {
		t.mu.Unlock()
		return shared.ErrConnectionFailed
	}
	if !t.connected {
		t.mu.Unlock()
		return nil
	}

	t.lastSend = time.Now()

	floats := audio.Int16ToFloat32(audio.PCMBytesToInt16(pcm))
	if t.cfg.SampleRate != ServerSampleRate {
		floats = audio.Resample(floats, t.cfg.SampleRate, ServerSampleRate)
	}
	t.pending = append(t.pending, floats...)

	var full [][]byte
	for len(t.pending) >= FrameSize {
		frame := make([]float32, FrameSize)
		copy(frame, t.pending[:FrameSize])
		t.pending = t.pending[FrameSize:]

		packed, err := encodeAudioFrame(frame)
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("encode audio frame: %w", err)
		}
		full = append(full, packed)
	}
	t.mu.Unlock()

	for _, frame := range full {
		select {
		case t.frames <- frame:
		default:
			t.log.Warn("outbound frame queue full, dropping frame")
		}
	}
	return nil
}

// LastSendTime is when audio last entered the outbound path.
func (t *Transcriber) LastSendTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSend
}

// IsReconnecting reports whether a reconnect attempt is in flight.
func (t *Transcriber) IsReconnecting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnecting
}

// Finish emits any open utterance, flushes the partial tail frame, sends
// the end-of-stream marker, and tears the socket down in the background so
// releasing one speaker never stalls others.
func (t *Transcriber) Finish() {
	t.finishOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		ws := t.ws
		connected := t.connected
		tail := t.pending
		t.pending = nil
		t.mu.Unlock()

		t.asm.flush(intake.FlushStreamEnd)
		t.cancel()

		if connected && ws != nil {
			go func() {
				if len(tail) > 0 {
					if packed, err := encodeAudioFrame(tail); err == nil {
						t.write(ws, packed)
					}
				}
				if marker, err := encodeMarker(); err == nil {
					t.write(ws, marker)
				}
				ws.Close()
			}()
		}

		t.log.Info("transcriber finished")
	})
}

func (t *Transcriber) write(ws *websocket.Conn, data []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

func (t *Transcriber) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// run owns the connection lifecycle: dial, retry with backoff inside the
// retry window, then hand the socket to the sender/receiver pair and wait
// for it to drop.
func (t *Transcriber) run() {
	start := time.Now()
	attempt := 0

	for {
		if t.isStopped() {
			return
		}

		elapsed := time.Since(start)
		if elapsed >= t.backoff.MaxWindow {
			t.markPermanent(attempt)
			return
		}

		ws, err := t.dial()
		if err != nil {
			delay := t.backoff.Delay(attempt)
			attempt++
			t.log.Warn("connection attempt failed",
				"attempt", attempt,
				"retry_in", delay,
				"error", err)

			if elapsed+delay >= t.backoff.MaxWindow {
				remaining := t.backoff.MaxWindow - elapsed
				if remaining > 0 {
					select {
					case <-t.ctx.Done():
						return
					case <-time.After(remaining):
					}
				}
				t.markPermanent(attempt)
				return
			}

			select {
			case <-t.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		t.log.Info("connected", "attempts", attempt+1)
		t.setConnected(ws)

		connCtx, connCancel := context.WithCancel(t.ctx)
		recvDone := make(chan struct{})
		sendDone := make(chan struct{})
		go t.receiveLoop(ws, recvDone)
		go t.sendLoop(connCtx, ws, sendDone)

		<-recvDone
		connCancel()
		<-sendDone
		t.setDisconnected()

		if t.isStopped() {
			return
		}
		t.log.Warn("connection dropped, retrying")
	}
}

func (t *Transcriber) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if t.cfg.APIKey != "" {
		header.Set("kyutai-api-key", t.cfg.APIKey)
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(t.ctx, t.cfg.ServerURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.cfg.ServerURL, err)
	}
	return ws, nil
}

func (t *Transcriber) setConnected(ws *websocket.Conn) {
	t.mu.Lock()
	t.ws = ws
	t.connected = true
	t.reconnecting = false
	t.mu.Unlock()
}

func (t *Transcriber) setDisconnected() {
	t.mu.Lock()
	t.ws = nil
	t.connected = false
	t.reconnecting = !t.stopped
	t.mu.Unlock()
}

func (t *Transcriber) markPermanent(attempts int) {
	t.mu.Lock()
	t.permanent = true
	t.reconnecting = false
	t.mu.Unlock()
	t.log.Error("giving up on provider connection",
		"attempts", attempts,
		"window", t.backoff.MaxWindow)
}

// receiveLoop decodes inbound control/result messages until the socket
// drops. Individual decode failures skip the message, never the stream.
func (t *Transcriber) receiveLoop(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !t.isStopped() {
				t.log.Warn("read failed", "error", err)
			}
			return
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			t.log.Warn("skipping undecodable message", "error", err)
			continue
		}

		switch msg.Kind {
		case KindReady:
			t.asm.onReady()
			t.log.Info("stream ready, timestamp anchor set")
		case KindWord:
			t.asm.onWord(msg.Text, msg.StartTime)
		case KindEndWord:
			t.asm.onEndWord(msg.StopTime)
		case KindStep:
			t.asm.onStep(msg.PausePredictions)
		case KindMarker:
			t.log.Info("end-of-stream marker received")
			t.asm.flush(intake.FlushStreamEnd)
		default:
			t.log.Debug("unknown message type", "type", msg.RawType)
		}
	}
}

// sendLoop drains the frame queue with frame-paced timing: frame N is sent
// no earlier than N frame-durations after the first send, keeping the
// remote's real-time assumptions valid.
func (t *Transcriber) sendLoop(ctx context.Context, ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	frameDuration := time.Duration(FrameSize) * time.Second / ServerSampleRate
	var start time.Time
	frameCount := 0

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-t.frames:
			if start.IsZero() {
				start = time.Now()
			}
			frameCount++

			expected := start.Add(time.Duration(frameCount) * frameDuration)
			if wait := time.Until(expected); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}

			if err := t.write(ws, frame); err != nil {
				if !t.isStopped() {
					t.log.Warn("write failed", "error", err)
				}
				return
			}
		}
	}
}
