package persist

import (
	"context"
	"testing"

	"github.com/eleven-am/meeting-scribe/internal/intake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func setupStore(t *testing.T) *Store {
	store := NewStore(setupTestDB(t))
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func testUtterance(speakerID, text string, tsMS int64) intake.TranscriptUtterance {
	return intake.TranscriptUtterance{
		SpeakerID:   speakerID,
		Speaker:     intake.ParticipantMetadata{ID: speakerID, FullName: "Alex Chen"},
		Transcript:  text,
		TimestampMS: tsMS,
		DurationMS:  1200,
		FlushReason: intake.FlushSemanticPause,
	}
}

func TestStore_SaveUtterance(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.SaveUtterance(ctx, testUtterance("spk1", "hello world", 1000)); err != nil {
		t.Fatalf("SaveUtterance() error = %v", err)
	}

	got, err := store.ListBySpeaker(ctx, "spk1", 0)
	if err != nil {
		t.Fatalf("ListBySpeaker() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(got))
	}
	if got[0].Transcript != "hello world" {
		t.Errorf("expected transcript preserved, got %q", got[0].Transcript)
	}
	if got[0].ParticipantName != "Alex Chen" {
		t.Errorf("expected participant name, got %q", got[0].ParticipantName)
	}
	if got[0].FlushReason != string(intake.FlushSemanticPause) {
		t.Errorf("expected flush reason recorded, got %q", got[0].FlushReason)
	}
	if got[0].ID == "" {
		t.Error("expected generated ID")
	}
}

func TestStore_ListBySpeaker_TranscriptOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Inserted out of transcript order.
	store.SaveUtterance(ctx, testUtterance("spk1", "second", 2000))
	store.SaveUtterance(ctx, testUtterance("spk1", "first", 1000))
	store.SaveUtterance(ctx, testUtterance("spk2", "other speaker", 1500))

	got, err := store.ListBySpeaker(ctx, "spk1", 0)
	if err != nil {
		t.Fatalf("ListBySpeaker() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].Transcript != "first" || got[1].Transcript != "second" {
		t.Errorf("expected timestamp order, got %q then %q", got[0].Transcript, got[1].Transcript)
	}
}

func TestStore_ListSince_InterleavesSpeakers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	store.SaveUtterance(ctx, testUtterance("spk1", "early", 500))
	store.SaveUtterance(ctx, testUtterance("spk2", "middle", 1500))
	store.SaveUtterance(ctx, testUtterance("spk1", "late", 2500))

	got, err := store.ListSince(ctx, 1000, 0)
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].Transcript != "middle" || got[1].Transcript != "late" {
		t.Errorf("expected chronological interleave, got %q then %q", got[0].Transcript, got[1].Transcript)
	}
}

func TestStore_QueueRoundTrip(t *testing.T) {
	store := setupStore(t)
	q := NewQueue(QueueConfig{})
	q.Start()

	ctx := context.Background()
	for i, text := range []string{"one", "two", "three"} {
		u := testUtterance("spk1", text, int64(1000*(i+1)))
		q.Enqueue("save_utterance", func() error {
			return store.SaveUtterance(ctx, u)
		})
	}
	q.Stop()

	got, err := store.ListBySpeaker(ctx, "spk1", 0)
	if err != nil {
		t.Fatalf("ListBySpeaker() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 utterances, got %d", len(got))
	}

	processed, failed, _ := q.Stats()
	if processed != 3 || failed != 0 {
		t.Errorf("unexpected queue stats: processed=%d failed=%d", processed, failed)
	}
}
