// Package sidetone generates the local side-tone and gates it with the key.
package sidetone

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Amplitude is the peak of a full scale signed 16-bit sample
const Amplitude = 32767

const bitDepth = 16

// Generate renders seconds of a mono sine at freqHz as 16-bit samples
func Generate(freqHz, sampleRate int, seconds float64) (*audio.IntBuffer, error) {
	if freqHz <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid tone %d Hz at %d Hz sample rate", freqHz, sampleRate)
	}
	if 2*freqHz > sampleRate {
		return nil, fmt.Errorf("tone %d Hz above Nyquist for %d Hz sample rate", freqHz, sampleRate)
	}

	n := int(seconds * float64(sampleRate))
	step := 2 * math.Pi * float64(freqHz) / float64(sampleRate)

	data := make([]int, n)
	for i := range data {
		data[i] = int(int16(math.Sin(float64(i)*step) * Amplitude))
	}

	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}, nil
}

// Float32 converts 16-bit samples to the [-1, 1] range used by the audio device
func Float32(buf *audio.IntBuffer) []float32 {
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / Amplitude
	}
	return out
}

// WriteWAV stores the tone as a mono 16-bit WAV file
func WriteWAV(w io.WriteSeeker, buf *audio.IntBuffer) error {
	enc := wav.NewEncoder(w, buf.Format.SampleRate, bitDepth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode tone: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// Gain maps a 0-100 volume setting on a logarithmic scale to a linear factor
func Gain(level int) float64 {
	v := float64(level) / 100
	switch {
	case v <= 0:
		return 0
	case v > 0.99:
		return 1
	}
	return -math.Log(1-v) / math.Log(100)
}
