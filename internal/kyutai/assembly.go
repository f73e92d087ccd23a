package kyutai

import (
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/intake"
)

// BoundaryConfig tunes how the word stream is cut into utterances. The
// defaults encode tuned provider behavior and should rarely change.
type BoundaryConfig struct {
	// PauseHeadIndex selects which pause-prediction head to trust.
	// Index 0 predicts 0.5s pauses, a good balance for natural speech.
	PauseHeadIndex int

	// PauseThreshold is the confidence above which a prediction counts
	// as a semantic pause.
	PauseThreshold float64

	// MinWordsForPause and MinDurationForPause gate immediate emission on
	// a semantic pause; shorter utterances wait ShortUtteranceGrace to
	// avoid single-word fragmentation.
	MinWordsForPause    int
	MinDurationForPause float64
	ShortUtteranceGrace time.Duration

	// MinSilence is the time-based fallback boundary; SingleWordGrace is
	// the extended wait for a single word still missing its end time.
	MinSilence      time.Duration
	SingleWordGrace time.Duration

	// WordGap is the audio-time gap between words that forces the
	// previous utterance out before the new word is accepted.
	WordGap float64

	// CheckInterval rate-limits time-based boundary checks.
	CheckInterval time.Duration
}

func (c BoundaryConfig) withDefaults() BoundaryConfig {
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = 0.25
	}
	if c.MinWordsForPause <= 0 {
		c.MinWordsForPause = 3
	}
	if c.MinDurationForPause <= 0 {
		c.MinDurationForPause = 1.5
	}
	if c.ShortUtteranceGrace <= 0 {
		c.ShortUtteranceGrace = 500 * time.Millisecond
	}
	if c.MinSilence <= 0 {
		c.MinSilence = 800 * time.Millisecond
	}
	if c.SingleWordGrace <= 0 {
		c.SingleWordGrace = 1500 * time.Millisecond
	}
	if c.WordGap <= 0 {
		c.WordGap = 1.0
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 100 * time.Millisecond
	}
	return c
}

// Result is one assembled utterance.
type Result struct {
	Text        string
	TimestampMS int64
	DurationMS  int64
	WordCount   int
	FlushReason intake.FlushReason
}

type word struct {
	text    string
	start   float64
	stop    float64
	hasStop bool
}

// assembler accumulates the server's word stream and decides utterance
// boundaries. The receiver goroutine drives it; Finish may poke it from
// another goroutine, hence the mutex.
type assembler struct {
	mu  sync.Mutex
	cfg BoundaryConfig
	now func() time.Time
	out func(Result)

	words []word

	// anchor is the wall clock when the server signaled Ready. Every
	// emitted timestamp is anchor + the provider-reported offset, so
	// transcript timing survives network jitter.
	anchor    time.Time
	anchorSet bool

	lastWordAt    time.Time
	pauseDetected bool
	lastCheck     time.Time
	invalidText   int
}

func newAssembler(cfg BoundaryConfig, out func(Result)) *assembler {
	return &assembler{
		cfg: cfg.withDefaults(),
		now: time.Now,
		out: out,
	}
}

func (a *assembler) onReady() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anchor = a.now()
	a.anchorSet = true
}

func (a *assembler) onWord(text string, start float64) {
	clean := sanitizeText(text)

	a.mu.Lock()
	defer a.mu.Unlock()

	if clean == "" {
		if text != "" {
			a.invalidText++
		}
		return
	}

	// A large audio-time gap means the previous utterance already ended;
	// emit it before accepting the new word.
	if len(a.words) > 0 {
		last := a.words[len(a.words)-1]
		if last.hasStop && start-last.stop > a.cfg.WordGap {
			a.emitLocked(intake.FlushTimeoutFallback)
		}
	}

	a.words = append(a.words, word{text: clean, start: start, stop: start})
	a.lastWordAt = a.now()
}

func (a *assembler) onEndWord(stop float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.words) == 0 {
		return
	}
	a.words[len(a.words)-1].stop = stop
	a.words[len(a.words)-1].hasStop = true
}

func (a *assembler) onStep(predictions []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.PauseHeadIndex < len(predictions) &&
		predictions[a.cfg.PauseHeadIndex] > a.cfg.PauseThreshold &&
		len(a.words) > 0 {
		a.pauseDetected = true
	}

	a.checkLocked()
}

// flush emits whatever is accumulated, used on Marker and Finish.
func (a *assembler) flush(reason intake.FlushReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emitLocked(reason)
}

func (a *assembler) checkLocked() {
	if len(a.words) == 0 || a.lastWordAt.IsZero() {
		return
	}

	now := a.now()

	if a.pauseDetected {
		// The semantic model is trained on natural boundaries; trust it
		// immediately for anything substantial.
		if len(a.words) >= a.cfg.MinWordsForPause || a.durationLocked() > a.cfg.MinDurationForPause {
			a.emitLocked(intake.FlushSemanticPause)
			return
		}
		// One or two words: give the stream a short grace to avoid
		// fragmenting, then emit anyway.
		if now.Sub(a.lastWordAt) > a.cfg.ShortUtteranceGrace {
			a.emitLocked(intake.FlushSemanticPause)
			return
		}
		return
	}

	if now.Sub(a.lastCheck) < a.cfg.CheckInterval {
		return
	}
	a.lastCheck = now

	silence := now.Sub(a.lastWordAt)
	if len(a.words) == 1 && !a.words[0].hasStop {
		// Be patient with a still-open single word: the end time may be
		// on the wire.
		if silence > a.cfg.SingleWordGrace {
			a.emitLocked(intake.FlushTimeoutFallback)
		}
		return
	}
	if silence > a.cfg.MinSilence {
		a.emitLocked(intake.FlushTimeoutFallback)
	}
}

func (a *assembler) durationLocked() float64 {
	if len(a.words) == 0 {
		return 0
	}
	first := a.words[0]
	last := a.words[len(a.words)-1]
	if !last.hasStop {
		return 0
	}
	return last.stop - first.start
}

func (a *assembler) emitLocked(reason intake.FlushReason) {
	if len(a.words) == 0 {
		return
	}

	texts := make([]string, len(a.words))
	for i, w := range a.words {
		texts[i] = w.text
	}

	first := a.words[0]
	last := a.words[len(a.words)-1]

	var timestampMS, durationMS int64
	if a.anchorSet {
		timestampMS = a.anchor.Add(secondsToDuration(first.start)).UnixMilli()

		if last.hasStop {
			durationMS = int64((last.stop - first.start) * 1000)
		} else {
			// No end time yet: estimate from word starts, floored by the
			// wall-clock time elapsed since the utterance began.
			elapsed := a.now().Sub(a.anchor.Add(secondsToDuration(first.start)))
			fromStarts := secondsToDuration(last.start - first.start)
			if fromStarts > elapsed {
				durationMS = fromStarts.Milliseconds()
			} else {
				durationMS = elapsed.Milliseconds()
			}
			if durationMS < 1 {
				durationMS = 1
			}
		}
	} else {
		timestampMS = a.now().UnixMilli()
	}

	result := Result{
		Text:        strings.Join(texts, " "),
		TimestampMS: timestampMS,
		DurationMS:  durationMS,
		WordCount:   len(a.words),
		FlushReason: reason,
	}

	a.words = nil
	a.lastWordAt = time.Time{}
	a.pauseDetected = false

	a.out(result)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
