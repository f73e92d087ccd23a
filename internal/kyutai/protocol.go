// Package kyutai implements a persistent, self-healing client for the
// Kyutai streaming speech-to-text protocol: MessagePack frames over a
// WebSocket, with server-side semantic segmentation.
package kyutai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// The server expects audio at exactly 24 kHz, mono, in fixed frames of
// 1920 float32 samples (80ms).
const (
	ServerSampleRate = 24000
	FrameSize        = 1920
)

// MessageKind enumerates the inbound message types the client handles.
// Anything else decodes as KindUnknown and is skipped, never fatal.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindReady
	KindWord
	KindEndWord
	KindStep
	KindMarker
)

func (k MessageKind) String() string {
	switch k {
	case KindReady:
		return "Ready"
	case KindWord:
		return "Word"
	case KindEndWord:
		return "EndWord"
	case KindStep:
		return "Step"
	case KindMarker:
		return "Marker"
	default:
		return "Unknown"
	}
}

// Message is the decoded form of one inbound server message.
type Message struct {
	Kind MessageKind

	// Word fields
	Text      string
	StartTime float64

	// EndWord field
	StopTime float64

	// Step field: pause predictions for increasing pause lengths
	// (0.5s, 1.0s, 2.0s, 3.0s).
	PausePredictions []float64

	// RawType preserves the wire tag for unknown kinds.
	RawType string
}

type wireMessage struct {
	Type      string    `msgpack:"type"`
	Text      string    `msgpack:"text"`
	StartTime float64   `msgpack:"start_time"`
	StopTime  float64   `msgpack:"stop_time"`
	Prs       []float64 `msgpack:"prs"`
}

type wireAudio struct {
	Type string    `msgpack:"type"`
	PCM  []float32 `msgpack:"pcm"`
}

type wireMarker struct {
	Type string `msgpack:"type"`
	ID   int    `msgpack:"id"`
}

func decodeMessage(raw []byte) (Message, error) {
	var wm wireMessage
	if err := msgpack.Unmarshal(raw, &wm); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	msg := Message{RawType: wm.Type}
	switch wm.Type {
	case "Ready":
		msg.Kind = KindReady
	case "Word":
		msg.Kind = KindWord
		msg.Text = wm.Text
		msg.StartTime = wm.StartTime
	case "EndWord":
		msg.Kind = KindEndWord
		msg.StopTime = wm.StopTime
	case "Step":
		msg.Kind = KindStep
		msg.PausePredictions = wm.Prs
	case "Marker":
		msg.Kind = KindMarker
	default:
		msg.Kind = KindUnknown
	}
	return msg, nil
}

func encodeAudioFrame(pcm []float32) ([]byte, error) {
	return msgpack.Marshal(wireAudio{Type: "Audio", PCM: pcm})
}

func encodeMarker() ([]byte, error) {
	return msgpack.Marshal(wireMarker{Type: "Marker", ID: 0})
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x0c\x0e-\x1f\x7f-\x9f]`)

// sanitizeText strips replacement characters and control characters the
// server occasionally emits on malformed UTF-8. Returns "" when nothing
// usable remains.
func sanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "�", "")
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
