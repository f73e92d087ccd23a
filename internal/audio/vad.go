package audio

import (
	"fmt"
	"math"
)

const maxVADFrameMillis = 30

// VAD is a lightweight voice-activity detector over short PCM frames.
// It combines normalized energy with zero-crossing rate: voiced speech has
// both meaningful energy and a crossing rate well below white noise.
type VAD struct {
	threshold float64
}

func NewVAD(threshold float64) *VAD {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.25
	}
	return &VAD{threshold: threshold}
}

// MaxFrameBytes is the byte budget IsSpeech accepts at the given sample
// rate, derived from the 30ms frame bound.
func MaxFrameBytes(sampleRate int) int {
	return maxVADFrameMillis * sampleRate / 1000
}

// IsSpeech reports whether the frame contains voiced audio. Frames must be
// at most 30ms long; longer input is an error left to the caller's policy.
func (v *VAD) IsSpeech(pcm []byte, sampleRate int) (bool, error) {
	if sampleRate <= 0 {
		return false, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(pcm) > MaxFrameBytes(sampleRate) {
		return false, fmt.Errorf("frame of %d bytes exceeds %dms limit", len(pcm), maxVADFrameMillis)
	}

	samples := PCMBytesToInt16(pcm)
	if len(samples) == 0 {
		return false, fmt.Errorf("empty frame")
	}

	probability := v.score(samples)
	return probability >= v.threshold, nil
}

func (v *VAD) score(samples []int16) float64 {
	var energy float64
	crossings := 0
	for i, s := range samples {
		energy += float64(s) * float64(s)
		if i > 0 && (samples[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	// Speech energy sits well below full scale; 10000 is a practical
	// ceiling for normalization on meeting audio.
	normalizedEnergy := energy / 10000.0
	if normalizedEnergy > 1.0 {
		normalizedEnergy = 1.0
	}

	crossingRate := float64(crossings) / float64(len(samples))

	// High crossing rates indicate fricatives or broadband noise. Damp the
	// energy contribution as the rate approaches 0.5 (random noise).
	noisePenalty := 1.0 - crossingRate/0.5
	if noisePenalty < 0 {
		noisePenalty = 0
	}

	probability := normalizedEnergy * (0.5 + 0.5*noisePenalty)
	if probability > 1.0 {
		probability = 1.0
	}
	return probability
}
