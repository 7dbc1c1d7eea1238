// Package audio provides the PCM primitives used by the capture engine and the
// gateway: format math, the fragment buffer drained on each flush period, and
// WAV container encoding.
package audio

import (
	"sync"
)

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultConfig returns the capture-side audio configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c Config) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

// FragmentBuffer accumulates sub-second capture fragments between flush
// periods. Drain atomically empties it, so one flush yields one segment and
// nothing is retained across periods.
type FragmentBuffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
}

// NewFragmentBuffer creates a buffer that holds up to maxDurationMs of audio
// in the given format. Writes beyond the cap discard the oldest data, which
// bounds memory if flushes stall.
func NewFragmentBuffer(config Config, maxDurationMs int) *FragmentBuffer {
	maxBytes := config.BytesForDurationMs(maxDurationMs)
	return &FragmentBuffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
	}
}

// Write appends a capture fragment.
func (b *FragmentBuffer) Write(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, data...)

	if b.maxBytes > 0 && len(b.data) > b.maxBytes {
		excess := len(b.data) - b.maxBytes
		b.data = b.data[excess:]
	}
}

// Drain returns everything buffered since the last drain and clears the
// buffer in the same critical section.
func (b *FragmentBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}

// Len returns the current buffer size in bytes.
func (b *FragmentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Clear empties the buffer without returning the contents.
func (b *FragmentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
