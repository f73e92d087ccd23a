package persist

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/redis/go-redis/v9"
)

func TestRedisBatchSink_SaveAudioChunk(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sink := NewRedisBatchSink(client, "")
	payload := intake.UtterancePayload{
		Speaker:     intake.ParticipantMetadata{ID: "spk1", FullName: "Alex Chen"},
		Audio:       []byte{0x01, 0x02, 0x03, 0x04},
		TimestampMS: 1700000000000,
		SampleRate:  16000,
		FlushReason: intake.FlushSilenceLimit,
	}

	if err := sink.SaveAudioChunk(payload); err != nil {
		t.Fatalf("SaveAudioChunk() error = %v", err)
	}

	entries, err := client.XRange(context.Background(), defaultBatchStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}

	values := entries[0].Values
	if values["speaker_id"] != "spk1" {
		t.Errorf("expected speaker_id, got %v", values["speaker_id"])
	}
	if values["participant_name"] != "Alex Chen" {
		t.Errorf("expected participant name, got %v", values["participant_name"])
	}
	if values["flush_reason"] != string(intake.FlushSilenceLimit) {
		t.Errorf("expected flush reason, got %v", values["flush_reason"])
	}
	if values["timestamp_ms"] != "1700000000000" {
		t.Errorf("expected timestamp, got %v", values["timestamp_ms"])
	}
	if values["audio"] != string([]byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("audio payload not preserved")
	}
}
