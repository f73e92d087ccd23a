package persist

import (
	"context"
	"strconv"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/redis/go-redis/v9"
)

const (
	defaultBatchStream  = "transcription:batch"
	batchPublishTimeout = 5 * time.Second
)

// RedisBatchSink hands complete buffered utterances to downstream batch
// transcription workers over a redis stream.
type RedisBatchSink struct {
	client *redis.Client
	stream string
}

func NewRedisBatchSink(client *redis.Client, stream string) *RedisBatchSink {
	if stream == "" {
		stream = defaultBatchStream
	}
	return &RedisBatchSink{client: client, stream: stream}
}

// SaveAudioChunk implements intake.BatchSink.
func (s *RedisBatchSink) SaveAudioChunk(payload intake.UtterancePayload) error {
	ctx, cancel := context.WithTimeout(context.Background(), batchPublishTimeout)
	defer cancel()

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"speaker_id":       payload.Speaker.ID,
			"participant_name": payload.Speaker.FullName,
			"timestamp_ms":     strconv.FormatInt(payload.TimestampMS, 10),
			"sample_rate":      strconv.Itoa(payload.SampleRate),
			"flush_reason":     string(payload.FlushReason),
			"audio":            payload.Audio,
		},
	}).Err()
}
