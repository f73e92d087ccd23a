package intake

import "sync"

// ParticipantRegistry is the default ParticipantResolver: a thread-safe
// roster that capture adapters populate as join/leave events arrive.
type ParticipantRegistry struct {
	mu           sync.RWMutex
	participants map[string]ParticipantMetadata
}

func NewParticipantRegistry() *ParticipantRegistry {
	return &ParticipantRegistry{
		participants: make(map[string]ParticipantMetadata),
	}
}

// Register adds or refreshes a participant. Metadata updates in place, so
// a renamed participant is reflected on the next resolution.
func (r *ParticipantRegistry) Register(meta ParticipantMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[meta.ID] = meta
}

// Unregister removes a participant when they leave.
func (r *ParticipantRegistry) Unregister(speakerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, speakerID)
}

// GetParticipant implements ParticipantResolver.
func (r *ParticipantRegistry) GetParticipant(speakerID string) (ParticipantMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.participants[speakerID]
	return meta, ok
}

// Count is the current roster size.
func (r *ParticipantRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
