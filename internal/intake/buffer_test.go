package intake

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/audio"
)

type speechDetectorStub struct{ speech bool }

func (d *speechDetectorStub) IsSpeech(pcm []byte, sampleRate int) (bool, error) {
	return d.speech, nil
}

type fakeResolver struct {
	participants map[string]ParticipantMetadata
}

func (r *fakeResolver) GetParticipant(speakerID string) (ParticipantMetadata, bool) {
	meta, ok := r.participants[speakerID]
	return meta, ok
}

type fakeBatchSink struct {
	payloads []UtterancePayload
}

func (s *fakeBatchSink) SaveAudioChunk(payload UtterancePayload) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClassifier() *audio.SilenceClassifier {
	return audio.NewSilenceClassifier(audio.SilenceConfig{Log: testLogger()}).
		WithDetector(&speechDetectorStub{speech: true})
}

func pcmTone(amplitude int16, samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(amplitude))
	}
	return pcm
}

func speechChunk() []byte  { return pcmTone(2000, 160) }
func silenceChunk() []byte { return pcmTone(0, 160) }

func newTestBuffer(sink *fakeBatchSink, resolver *fakeResolver) *UtteranceBuffer {
	return NewUtteranceBuffer(BufferConfig{
		SampleRate:   16000,
		SizeLimit:    10000,
		SilenceLimit: 3 * time.Second,
		Classifier:   testClassifier(),
		Participants: resolver,
		Sink:         sink,
		Log:          testLogger(),
	})
}

func TestUtteranceBuffer_SilenceLimitFlush(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{
		"spk1": {ID: "spk1", FullName: "Ada"},
	}}
	buf := newTestBuffer(sink, resolver)

	start := time.Now()
	buf.AddChunk("spk1", start, speechChunk())
	buf.AddChunk("spk1", start.Add(100*time.Millisecond), speechChunk())
	buf.AddChunk("spk1", start.Add(4*time.Second), silenceChunk())
	buf.ProcessChunks()

	if len(sink.payloads) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(sink.payloads))
	}
	p := sink.payloads[0]
	if p.FlushReason != FlushSilenceLimit {
		t.Errorf("expected flush reason %s, got %s", FlushSilenceLimit, p.FlushReason)
	}
	if p.TimestampMS != start.UnixMilli() {
		t.Errorf("timestamp should be first non-silent chunk time: want %d got %d", start.UnixMilli(), p.TimestampMS)
	}
	if p.Speaker.FullName != "Ada" {
		t.Errorf("expected resolved participant, got %+v", p.Speaker)
	}
	if buf.OpenBuffers() != 0 {
		t.Errorf("expected no open buffers after flush, got %d", buf.OpenBuffers())
	}
}

func TestUtteranceBuffer_IntraUtterancePausePreserved(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{"spk1": {ID: "spk1"}}}
	buf := newTestBuffer(sink, resolver)

	start := time.Now()
	buf.AddChunk("spk1", start, speechChunk())
	buf.AddChunk("spk1", start.Add(time.Second), silenceChunk())
	buf.AddChunk("spk1", start.Add(2*time.Second), speechChunk())
	buf.AddChunk("spk1", start.Add(6*time.Second), silenceChunk())
	buf.ProcessChunks()

	if len(sink.payloads) != 1 {
		t.Fatalf("expected one utterance, got %d", len(sink.payloads))
	}
	want := len(speechChunk())*2 + len(silenceChunk())*2
	if len(sink.payloads[0].Audio) != want {
		t.Errorf("silent audio inside an open utterance should be kept: want %d bytes, got %d", want, len(sink.payloads[0].Audio))
	}
}

func TestUtteranceBuffer_BufferFullFlush(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{"spk1": {ID: "spk1"}}}
	buf := NewUtteranceBuffer(BufferConfig{
		SampleRate:   16000,
		SizeLimit:    len(speechChunk()) * 3,
		SilenceLimit: time.Hour,
		Classifier:   testClassifier(),
		Participants: resolver,
		Sink:         sink,
		Log:          testLogger(),
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		buf.AddChunk("spk1", start.Add(time.Duration(i)*100*time.Millisecond), speechChunk())
	}
	buf.ProcessChunks()

	if len(sink.payloads) != 1 {
		t.Fatalf("expected one utterance, got %d", len(sink.payloads))
	}
	if sink.payloads[0].FlushReason != FlushBufferFull {
		t.Errorf("expected flush reason %s, got %s", FlushBufferFull, sink.payloads[0].FlushReason)
	}
}

func TestUtteranceBuffer_FlushUtterances(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{
		"spk1": {ID: "spk1"},
		"spk2": {ID: "spk2"},
	}}
	buf := newTestBuffer(sink, resolver)

	now := time.Now()
	buf.AddChunk("spk1", now, speechChunk())
	buf.AddChunk("spk2", now, speechChunk())
	buf.ProcessChunks()

	if len(sink.payloads) != 0 {
		t.Fatalf("nothing should flush before the silence limit, got %d", len(sink.payloads))
	}

	buf.FlushUtterances()
	if len(sink.payloads) != 2 {
		t.Fatalf("expected both speakers flushed exactly once, got %d", len(sink.payloads))
	}
	for _, p := range sink.payloads {
		if p.FlushReason != FlushSilenceLimit {
			t.Errorf("end-of-meeting drain should use %s, got %s", FlushSilenceLimit, p.FlushReason)
		}
	}

	buf.FlushUtterances()
	if len(sink.payloads) != 2 {
		t.Errorf("second drain should be a no-op, got %d payloads", len(sink.payloads))
	}
}

func TestUtteranceBuffer_UnknownParticipantDropped(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{}}
	buf := newTestBuffer(sink, resolver)

	buf.AddChunk("ghost", time.Now(), speechChunk())
	buf.ProcessChunks()
	buf.FlushUtterances()

	if len(sink.payloads) != 0 {
		t.Fatalf("unresolved speaker should be dropped, got %d payloads", len(sink.payloads))
	}
	if buf.Stats().DroppedNoParticipant != 1 {
		t.Errorf("expected drop counter 1, got %d", buf.Stats().DroppedNoParticipant)
	}
	if buf.OpenBuffers() != 0 {
		t.Error("state should be cleared even when the participant is unknown")
	}
}

func TestUtteranceBuffer_SilentAudioNeverOpensBuffer(t *testing.T) {
	sink := &fakeBatchSink{}
	resolver := &fakeResolver{participants: map[string]ParticipantMetadata{"spk1": {ID: "spk1"}}}
	buf := newTestBuffer(sink, resolver)

	now := time.Now()
	for i := 0; i < 10; i++ {
		buf.AddChunk("spk1", now.Add(time.Duration(i)*time.Second), silenceChunk())
	}
	buf.ProcessChunks()

	if buf.OpenBuffers() != 0 {
		t.Errorf("silence should not open a buffer, got %d open", buf.OpenBuffers())
	}
	if len(sink.payloads) != 0 {
		t.Errorf("expected no utterances, got %d", len(sink.payloads))
	}
}
