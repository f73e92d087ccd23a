package intake

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/audio"
)

// ProviderPolicy captures how a streaming provider tolerates idle
// connections and silent audio.
type ProviderPolicy struct {
	Name string

	// SilenceTolerant providers receive every chunk so their own semantic
	// segmentation sees intra-utterance pauses. Rate-sensitive providers
	// only receive audio once a speaker is demonstrably speaking.
	SilenceTolerant bool

	// SilenceLimit is how long a speaker may stay silent before their
	// connection is reaped on a monitor tick.
	SilenceLimit time.Duration

	// MaxConnections caps live connections across all speakers.
	MaxConnections int
}

func (p ProviderPolicy) withDefaults() ProviderPolicy {
	if p.SilenceLimit <= 0 {
		if p.SilenceTolerant {
			p.SilenceLimit = 300 * time.Second
		} else {
			p.SilenceLimit = 10 * time.Second
		}
	}
	if p.MaxConnections <= 0 {
		p.MaxConnections = 4
	}
	return p
}

// PoolConfig wires a StreamPool.
type PoolConfig struct {
	SampleRate     int
	Policy         ProviderPolicy
	Classifier     *audio.SilenceClassifier
	Participants   ParticipantResolver
	NewTranscriber TranscriberFactory
	Log            *slog.Logger
}

// StreamPool owns the per-speaker lifecycle of live provider connections:
// lazy creation, idle teardown, and least-recently-active eviction under a
// hard concurrency cap.
//
// AddChunk and Monitor calls are serialized by the caller's tick loop; the
// mutex exists for concurrent reads from the health surface.
type StreamPool struct {
	sampleRate     int
	policy         ProviderPolicy
	classifier     *audio.SilenceClassifier
	participants   ParticipantResolver
	newTranscriber TranscriberFactory
	log            *slog.Logger

	mu         sync.Mutex
	conns      map[string]Transcriber
	lastSpeech map[string]time.Time
}

func NewStreamPool(cfg PoolConfig) *StreamPool {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = audio.NewSilenceClassifier(audio.SilenceConfig{
			RMSThreshold: 0.0025,
			Log:          cfg.Log,
		})
	}

	return &StreamPool{
		sampleRate:     cfg.SampleRate,
		policy:         cfg.Policy.withDefaults(),
		classifier:     cfg.Classifier,
		participants:   cfg.Participants,
		newTranscriber: cfg.NewTranscriber,
		log:            cfg.Log.With("component", "stream_pool", "provider", cfg.Policy.Name),
		conns:          make(map[string]Transcriber),
		lastSpeech:     make(map[string]time.Time),
	}
}

// AddChunk routes one chunk of a speaker's audio toward their connection,
// creating it lazily when the speaker is known and policy allows.
func (p *StreamPool) AddChunk(speakerID string, chunkTime time.Time, pcm []byte) {
	silent := p.classifier.IsSilent(pcm, p.sampleRate)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !silent {
		p.lastSpeech[speakerID] = time.Now()
	}

	// Rate-sensitive providers never get a connection opened purely on
	// noise floor; silent audio is forwarded only to an existing one.
	if silent && !p.policy.SilenceTolerant {
		if _, exists := p.conns[speakerID]; !exists {
			return
		}
	}

	conn := p.findOrCreateLocked(speakerID)
	if conn == nil {
		return
	}

	if err := conn.Send(pcm); err != nil {
		// The remote is gone: drop the handle without calling Finish so
		// the next chunk triggers a fresh connection. Other speakers'
		// connections are untouched.
		p.log.Info("dropping failed connection", "speaker_id", speakerID, "error", err)
		delete(p.conns, speakerID)
	}
}

func (p *StreamPool) findOrCreateLocked(speakerID string) Transcriber {
	if conn, ok := p.conns[speakerID]; ok {
		return conn
	}

	meta, ok := p.participants.GetParticipant(speakerID)
	if !ok {
		// Audio arrived before the roster captured the join; retried on
		// the next chunk.
		return nil
	}

	conn, err := p.newTranscriber(speakerID, meta)
	if err != nil {
		p.log.Warn("transcriber creation failed", "speaker_id", speakerID, "error", err)
		return nil
	}

	p.log.Info("created streaming transcriber", "speaker_id", speakerID, "participant", meta.FullName)
	p.conns[speakerID] = conn
	if _, ok := p.lastSpeech[speakerID]; !ok {
		p.lastSpeech[speakerID] = time.Now()
	}
	return conn
}

// Monitor reaps idle connections and enforces the concurrency cap. It runs
// on a steady cadence independent of audio arrival so idle speakers are
// still torn down.
func (p *StreamPool) Monitor() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for speakerID, conn := range p.conns {
		last, ok := p.lastSpeech[speakerID]
		if !ok {
			p.lastSpeech[speakerID] = now
			continue
		}
		if now.Sub(last) > p.policy.SilenceLimit {
			conn.Finish()
			delete(p.conns, speakerID)
			delete(p.lastSpeech, speakerID)
			p.log.Info("reaped idle streaming transcriber", "speaker_id", speakerID)
		}
	}

	// A newly active speaker always displaces the least-recently-active
	// one, regardless of the evictee's silence state.
	for len(p.conns) > p.policy.MaxConnections {
		var oldestID string
		var oldest time.Time
		for speakerID, conn := range p.conns {
			if oldestID == "" || conn.LastSendTime().Before(oldest) {
				oldestID = speakerID
				oldest = conn.LastSendTime()
			}
		}
		p.conns[oldestID].Finish()
		delete(p.conns, oldestID)
		delete(p.lastSpeech, oldestID)
		p.log.Info("evicted oldest streaming transcriber", "speaker_id", oldestID)
	}

	p.classifier.MaybeLogStats()
}

// FinishAll tears down every live connection, used at meeting end.
func (p *StreamPool) FinishAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for speakerID, conn := range p.conns {
		conn.Finish()
		delete(p.conns, speakerID)
		delete(p.lastSpeech, speakerID)
	}
}

// ConnectionCount reports live connections, for the health surface.
func (p *StreamPool) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
