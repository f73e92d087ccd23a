package persist

import "time"

// Utterance is one persisted transcription result, from either the
// streaming or the buffered path.
type Utterance struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	SpeakerID       string    `gorm:"not null;index" json:"speaker_id"`
	ParticipantName string    `json:"participant_name"`
	Transcript      string    `gorm:"not null" json:"transcript"`
	TimestampMS     int64     `gorm:"not null;index" json:"timestamp_ms"`
	DurationMS      int64     `json:"duration_ms"`
	FlushReason     string    `gorm:"not null" json:"flush_reason"`
	CreatedAt       time.Time `json:"created_at"`
}
