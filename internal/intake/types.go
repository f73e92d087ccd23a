package intake

import "time"

// FlushReason records why an utterance was closed.
type FlushReason string

const (
	FlushBufferFull      FlushReason = "buffer_full"
	FlushSilenceLimit    FlushReason = "silence_limit"
	FlushStreamEnd       FlushReason = "stream_end"
	FlushSemanticPause   FlushReason = "semantic_pause"
	FlushTimeoutFallback FlushReason = "timeout_fallback"
)

// AudioChunk is one transient slice of a participant's PCM stream. Chunks
// are consumed by exactly one pipeline stage and never persisted.
type AudioChunk struct {
	SpeakerID  string
	CapturedAt time.Time
	PCM        []byte
	SampleRate int
}

// ParticipantMetadata is the display identity resolved for a speaker.
type ParticipantMetadata struct {
	ID       string
	FullName string
	Extra    map[string]string
}

// UtterancePayload is a complete buffered utterance handed to a batch
// transcription sink.
type UtterancePayload struct {
	Speaker     ParticipantMetadata
	Audio       []byte
	TimestampMS int64
	SampleRate  int
	FlushReason FlushReason
}

// TranscriptUtterance is a finished streaming-path transcription result.
type TranscriptUtterance struct {
	SpeakerID   string
	Speaker     ParticipantMetadata
	Transcript  string
	TimestampMS int64
	DurationMS  int64
	FlushReason FlushReason
}
