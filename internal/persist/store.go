package persist

import (
	"context"

	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/eleven-am/meeting-scribe/internal/shared"
	"gorm.io/gorm"
)

// Store is the gorm-backed utterance sink. Callers route writes through
// the Queue so inserts stay strictly ordered.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Utterance{})
}

// SaveUtterance implements intake.UtteranceSink.
func (s *Store) SaveUtterance(ctx context.Context, u intake.TranscriptUtterance) error {
	rec := Utterance{
		ID:              shared.NewID("utt_"),
		SpeakerID:       u.SpeakerID,
		ParticipantName: u.Speaker.FullName,
		Transcript:      u.Transcript,
		TimestampMS:     u.TimestampMS,
		DurationMS:      u.DurationMS,
		FlushReason:     string(u.FlushReason),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// ListBySpeaker returns a speaker's utterances in transcript order.
func (s *Store) ListBySpeaker(ctx context.Context, speakerID string, limit int) ([]*Utterance, error) {
	if limit <= 0 {
		limit = 100
	}
	var utterances []*Utterance
	err := s.db.WithContext(ctx).
		Where("speaker_id = ?", speakerID).
		Order("timestamp_ms ASC").
		Limit(limit).
		Find(&utterances).Error
	return utterances, err
}

// ListSince returns all utterances at or after the given timestamp, in
// transcript order, interleaving speakers.
func (s *Store) ListSince(ctx context.Context, sinceMS int64, limit int) ([]*Utterance, error) {
	if limit <= 0 {
		limit = 100
	}
	var utterances []*Utterance
	err := s.db.WithContext(ctx).
		Where("timestamp_ms >= ?", sinceMS).
		Order("timestamp_ms ASC").
		Limit(limit).
		Find(&utterances).Error
	return utterances, err
}
