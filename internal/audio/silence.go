package audio

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// SpeechDetector is the narrow VAD capability the classifier depends on.
type SpeechDetector interface {
	IsSpeech(pcm []byte, sampleRate int) (bool, error)
}

// SilenceConfig tunes the classifier. Defaults follow the non-streaming
// path; the streaming pool lowers RMSThreshold to 0.0025.
type SilenceConfig struct {
	RMSThreshold       float64
	VADThreshold       float64
	DiagnosticInterval time.Duration
	Log                *slog.Logger
}

// SilenceClassifier decides, per chunk, whether audio is silence. Decisions
// are stateless; only diagnostic counters are retained between calls.
type SilenceClassifier struct {
	rmsThreshold float64
	vad          SpeechDetector
	log          *slog.Logger

	diagInterval time.Duration
	lastDiagLog  atomic.Int64

	silentZeroRMS  atomic.Uint64
	silentSmallRMS atomic.Uint64
	silentVAD      atomic.Uint64
	tooLargeForVAD atomic.Uint64
	vadErrors      atomic.Uint64
	speech         atomic.Uint64
}

func NewSilenceClassifier(cfg SilenceConfig) *SilenceClassifier {
	if cfg.RMSThreshold <= 0 {
		cfg.RMSThreshold = 0.01
	}
	if cfg.DiagnosticInterval <= 0 {
		cfg.DiagnosticInterval = 30 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	c := &SilenceClassifier{
		rmsThreshold: cfg.RMSThreshold,
		vad:          NewVAD(cfg.VADThreshold),
		log:          cfg.Log.With("component", "silence_classifier"),
		diagInterval: cfg.DiagnosticInterval,
	}
	c.lastDiagLog.Store(time.Now().UnixNano())
	return c
}

// WithDetector swaps the VAD implementation. Tests use it to pin verdicts.
func (c *SilenceClassifier) WithDetector(d SpeechDetector) *SilenceClassifier {
	c.vad = d
	return c
}

// IsSilent classifies one chunk. Rules fire in priority order: malformed or
// dead input is silent, RMS below threshold is silent, chunks too large for
// the VAD are speech, VAD faults are speech (never drop audio on a detector
// error), otherwise the VAD verdict stands.
func (c *SilenceClassifier) IsSilent(pcm []byte, sampleRate int) bool {
	rms := NormalizedRMS(pcm)
	if rms == 0 {
		c.silentZeroRMS.Add(1)
		return true
	}
	if rms < c.rmsThreshold {
		c.silentSmallRMS.Add(1)
		return true
	}

	if len(pcm) > MaxFrameBytes(sampleRate) {
		c.tooLargeForVAD.Add(1)
		c.speech.Add(1)
		return false
	}

	isSpeech, err := c.vad.IsSpeech(pcm, sampleRate)
	if err != nil {
		c.vadErrors.Add(1)
		c.speech.Add(1)
		return false
	}
	if !isSpeech {
		c.silentVAD.Add(1)
		return true
	}

	c.speech.Add(1)
	return false
}

// Stats is a snapshot of the classifier's diagnostic counters.
type Stats struct {
	SilentZeroRMS  uint64 `json:"silent_zero_rms"`
	SilentSmallRMS uint64 `json:"silent_small_rms"`
	SilentVAD      uint64 `json:"silent_vad"`
	TooLargeForVAD uint64 `json:"too_large_for_vad"`
	VADErrors      uint64 `json:"vad_errors"`
	Speech         uint64 `json:"speech"`
}

func (c *SilenceClassifier) Stats() Stats {
	return Stats{
		SilentZeroRMS:  c.silentZeroRMS.Load(),
		SilentSmallRMS: c.silentSmallRMS.Load(),
		SilentVAD:      c.silentVAD.Load(),
		TooLargeForVAD: c.tooLargeForVAD.Load(),
		VADErrors:      c.vadErrors.Load(),
		Speech:         c.speech.Load(),
	}
}

// MaybeLogStats emits and resets the counters once per diagnostic interval.
// Callers invoke it from their periodic tick.
func (c *SilenceClassifier) MaybeLogStats() {
	last := c.lastDiagLog.Load()
	now := time.Now().UnixNano()
	if now-last < int64(c.diagInterval) {
		return
	}
	if !c.lastDiagLog.CompareAndSwap(last, now) {
		return
	}

	stats := c.Stats()
	c.log.Info("classifier diagnostics",
		"speech", stats.Speech,
		"silent_zero_rms", stats.SilentZeroRMS,
		"silent_small_rms", stats.SilentSmallRMS,
		"silent_vad", stats.SilentVAD,
		"too_large_for_vad", stats.TooLargeForVAD,
		"vad_errors", stats.VADErrors)

	c.silentZeroRMS.Store(0)
	c.silentSmallRMS.Store(0)
	c.silentVAD.Store(0)
	c.tooLargeForVAD.Store(0)
	c.vadErrors.Store(0)
	c.speech.Store(0)
}
