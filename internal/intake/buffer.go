package intake

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/audio"
)

const defaultChunkQueueCapacity = 4096

type queuedChunk struct {
	speakerID string
	time      time.Time
	pcm       []byte
}

type speakerBuffer struct {
	data        []byte
	firstSpeech time.Time
	lastSpeech  time.Time
}

// BufferConfig tunes the non-streaming utterance buffer.
type BufferConfig struct {
	SampleRate    int
	SizeLimit     int
	SilenceLimit  time.Duration
	QueueCapacity int
	Classifier    *audio.SilenceClassifier
	Participants  ParticipantResolver
	Sink          BatchSink
	Log           *slog.Logger
}

// UtteranceBuffer turns each speaker's chunk stream into discrete
// utterances for providers that need one complete audio payload.
//
// AddChunk may be called from the capture goroutine; ProcessChunks and
// FlushUtterances must be serialized by the caller (one tick at a time).
type UtteranceBuffer struct {
	sampleRate   int
	sizeLimit    int
	silenceLimit time.Duration
	classifier   *audio.SilenceClassifier
	participants ParticipantResolver
	sink         BatchSink
	log          *slog.Logger

	queue chan queuedChunk
	open  map[string]*speakerBuffer

	openCount     atomic.Int64
	sent          atomic.Uint64
	droppedNoPart atomic.Uint64
	droppedFull   atomic.Uint64
}

func NewUtteranceBuffer(cfg BufferConfig) *UtteranceBuffer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SizeLimit <= 0 {
		// ~30s of 16-bit mono at 16kHz
		cfg.SizeLimit = 960000
	}
	if cfg.SilenceLimit <= 0 {
		cfg.SilenceLimit = 3 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultChunkQueueCapacity
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = audio.NewSilenceClassifier(audio.SilenceConfig{Log: cfg.Log})
	}

	return &UtteranceBuffer{
		sampleRate:   cfg.SampleRate,
		sizeLimit:    cfg.SizeLimit,
		silenceLimit: cfg.SilenceLimit,
		classifier:   cfg.Classifier,
		participants: cfg.Participants,
		sink:         cfg.Sink,
		log:          cfg.Log.With("component", "utterance_buffer"),
		queue:        make(chan queuedChunk, cfg.QueueCapacity),
		open:         make(map[string]*speakerBuffer),
	}
}

// AddChunk enqueues one chunk without blocking. If the internal queue is
// full the chunk is dropped with a counter rather than stalling capture.
func (b *UtteranceBuffer) AddChunk(speakerID string, chunkTime time.Time, pcm []byte) {
	select {
	case b.queue <- queuedChunk{speakerID: speakerID, time: chunkTime, pcm: pcm}:
	default:
		b.droppedFull.Add(1)
	}
}

// ProcessChunks drains queued audio, then runs a silence tick for every
// open buffer so utterances close even when a speaker stops producing
// chunks entirely. Called on the main loop cadence.
func (b *UtteranceBuffer) ProcessChunks() {
	for {
		select {
		case c := <-b.queue:
			b.processChunk(c.speakerID, c.time, c.pcm)
		default:
			b.flushTick(time.Now())
			b.classifier.MaybeLogStats()
			return
		}
	}
}

// FlushUtterances closes every open buffer, used at meeting end. It works
// by synthesizing a silence tick far enough in the future to trip the
// silence limit for each speaker.
func (b *UtteranceBuffer) FlushUtterances() {
	b.flushTick(time.Now().Add(b.silenceLimit + time.Second))
}

func (b *UtteranceBuffer) flushTick(at time.Time) {
	for speakerID := range b.open {
		b.processChunk(speakerID, at, nil)
	}
}

func (b *UtteranceBuffer) processChunk(speakerID string, chunkTime time.Time, pcm []byte) {
	silent := true
	if len(pcm) > 0 {
		silent = b.classifier.IsSilent(pcm, b.sampleRate)
	}

	buf, ok := b.open[speakerID]
	if !ok {
		if silent {
			return
		}
		buf = &speakerBuffer{firstSpeech: chunkTime, lastSpeech: chunkTime}
		b.open[speakerID] = buf
		b.openCount.Add(1)
	}

	// Append even when silent so intra-utterance pauses survive.
	buf.data = append(buf.data, pcm...)

	var reason FlushReason
	if len(buf.data) >= b.sizeLimit {
		reason = FlushBufferFull
	}
	if silent {
		if chunkTime.Sub(buf.lastSpeech) >= b.silenceLimit {
			reason = FlushSilenceLimit
		}
	} else {
		buf.lastSpeech = chunkTime
	}

	if reason != "" && len(buf.data) > 0 {
		b.flush(speakerID, buf, reason)
	}
}

func (b *UtteranceBuffer) flush(speakerID string, buf *speakerBuffer, reason FlushReason) {
	defer func() {
		delete(b.open, speakerID)
		b.openCount.Add(-1)
	}()

	meta, ok := b.participants.GetParticipant(speakerID)
	if !ok {
		b.droppedNoPart.Add(1)
		b.log.Warn("participant not found, dropping utterance", "speaker_id", speakerID)
		return
	}

	payload := UtterancePayload{
		Speaker:     meta,
		Audio:       buf.data,
		TimestampMS: buf.firstSpeech.UnixMilli(),
		SampleRate:  b.sampleRate,
		FlushReason: reason,
	}
	if err := b.sink.SaveAudioChunk(payload); err != nil {
		b.log.Error("batch sink rejected utterance", "speaker_id", speakerID, "error", err)
		return
	}
	b.sent.Add(1)
}

// OpenBuffers reports how many speakers currently have an open utterance.
// Safe to call from outside the tick goroutine.
func (b *UtteranceBuffer) OpenBuffers() int {
	return int(b.openCount.Load())
}

// BufferStats is a snapshot of delivery counters for diagnostics.
type BufferStats struct {
	Sent                 uint64 `json:"sent"`
	DroppedNoParticipant uint64 `json:"dropped_no_participant"`
	DroppedQueueFull     uint64 `json:"dropped_queue_full"`
}

func (b *UtteranceBuffer) Stats() BufferStats {
	return BufferStats{
		Sent:                 b.sent.Load(),
		DroppedNoParticipant: b.droppedNoPart.Load(),
		DroppedQueueFull:     b.droppedFull.Load(),
	}
}
