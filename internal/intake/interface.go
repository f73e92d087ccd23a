package intake

import (
	"context"
	"time"
)

// ParticipantResolver maps a speaker ID to display metadata. A false
// return means "not yet known", a retryable condition: audio can arrive
// before the roster adapter has captured the join event.
type ParticipantResolver interface {
	GetParticipant(speakerID string) (ParticipantMetadata, bool)
}

// BatchSink accepts complete utterance payloads for batch transcription.
type BatchSink interface {
	SaveAudioChunk(payload UtterancePayload) error
}

// UtteranceSink accepts finished streaming transcription results. It is
// invoked only through the sequential persistence queue.
type UtteranceSink interface {
	SaveUtterance(ctx context.Context, utterance TranscriptUtterance) error
}

// Transcriber is a live streaming-provider connection as seen by the pool.
type Transcriber interface {
	// Send forwards raw PCM. It must be fast: audio is queued internally,
	// never transmitted synchronously. After the provider's reconnect
	// window is exhausted it returns shared.ErrConnectionFailed.
	Send(pcm []byte) error

	// Finish closes the connection, flushing anything buffered. Idempotent
	// and safe to call from outside the connection's own goroutines.
	Finish()

	// LastSendTime is when audio was last forwarded, used for eviction.
	LastSendTime() time.Time
}

// TranscriberFactory creates a provider connection for one speaker.
// Credential lookup happens here, once per connection construction.
type TranscriberFactory func(speakerID string, meta ParticipantMetadata) (Transcriber, error)
