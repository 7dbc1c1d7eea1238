package meet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/linguameet/meet-lite/pkg/core"
	"github.com/linguameet/meet-lite/pkg/core/audio"
)

const (
	// defaultFlushPeriod is the fixed wall-clock cadence at which buffered
	// capture fragments are drained into one transmittable segment.
	defaultFlushPeriod = 2 * time.Second

	// captureFragmentBytes keeps individual source reads sub-second.
	captureFragmentBytes = 1024

	// maxBufferedAudioMs bounds buffer growth if flushing stalls.
	maxBufferedAudioMs = 10000
)

// CaptureSourceFactory acquires the microphone resource. It is called once
// per Start; acquisition failure maps to DeviceUnavailable.
type CaptureSourceFactory func() (io.ReadCloser, error)

// CaptureConfig configures a CaptureEngine.
type CaptureConfig struct {
	// Audio is the PCM format produced by the source.
	Audio audio.Config

	// FlushPeriod overrides the 2 s segment cadence (tests use short periods).
	FlushPeriod time.Duration

	// Source acquires the capture device. Defaults to the ffmpeg microphone.
	Source CaptureSourceFactory

	// Language tags outbound segments, e.g. "en-US".
	Language string

	Logger *slog.Logger
}

// CaptureEngine owns the microphone for the session's lifetime and turns the
// continuous stream into discrete segments without blocking its caller.
// Segments are WAV-wrapped, base64-encoded and handed to the transmit
// callback; segments drained while the connection is not open are discarded,
// never queued.
type CaptureEngine struct {
	cfg    CaptureConfig
	buffer *audio.FragmentBuffer
	logger *slog.Logger

	// transmit receives each encoded segment; gate reports whether the
	// connection is currently open.
	transmit func(audioB64, language string, capturedAt time.Time)
	gate     func() bool
	onError  func(err *core.Error)

	mu      sync.Mutex
	running bool
	source  io.ReadCloser
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCaptureEngine wires a capture engine to its transmit callback and
// connection gate. onError receives DeviceUnavailable/AudioCaptureError
// reports; it may be nil.
func NewCaptureEngine(cfg CaptureConfig, transmit func(audioB64, language string, capturedAt time.Time), gate func() bool, onError func(err *core.Error)) *CaptureEngine {
	if cfg.Audio == (audio.Config{}) {
		cfg.Audio = audio.DefaultConfig()
	}
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = defaultFlushPeriod
	}
	if cfg.Source == nil {
		cfg.Source = NewFFmpegMicSource
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureEngine{
		cfg:      cfg,
		buffer:   audio.NewFragmentBuffer(cfg.Audio, maxBufferedAudioMs),
		logger:   logger,
		transmit: transmit,
		gate:     gate,
		onError:  onError,
	}
}

// Running reports whether capture is active.
func (e *CaptureEngine) Running() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start acquires the capture device and begins the fragment reader and the
// periodic flush. Acquisition failure is reported as DeviceUnavailable and
// is not retried.
func (e *CaptureEngine) Start(ctx context.Context) error {
	if e == nil {
		return core.NewInvalidRequestError("capture engine must not be nil")
	}
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}

	source, err := e.cfg.Source()
	if err != nil {
		e.mu.Unlock()
		return core.NewDeviceUnavailableError(fmt.Sprintf("acquire capture device: %v", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.source = source
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.readFragments(runCtx, source)

	e.wg.Add(1)
	go e.flushLoop(runCtx)

	return nil
}

// Stop halts capture, drops any partial buffer and releases the device.
// Idempotent; safe to call from teardown regardless of state.
func (e *CaptureEngine) Stop() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	source := e.source
	e.cancel = nil
	e.source = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if source != nil {
		_ = source.Close()
	}
	e.wg.Wait()

	// In-flight audio younger than one period is dropped, not flushed.
	e.buffer.Clear()
}

func (e *CaptureEngine) readFragments(ctx context.Context, source io.ReadCloser) {
	defer e.wg.Done()

	buf := make([]byte, captureFragmentBytes)
	for {
		n, err := source.Read(buf)
		if n > 0 {
			e.buffer.Write(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			captureErr := core.NewAudioCaptureError(fmt.Sprintf("capture read failed: %v", err))
			e.logger.Warn("audio capture stopped", "error", captureErr)
			go e.Stop()
			if e.onError != nil {
				e.onError(captureErr)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *CaptureEngine) flushLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flushOnce()
		}
	}
}

// flushOnce drains the fragment buffer into one segment. An empty buffer
// produces no transmission; a drained segment is discarded when the
// connection gate is closed, bounding memory during disconnection.
func (e *CaptureEngine) flushOnce() {
	pcm := e.buffer.Drain()
	if len(pcm) == 0 {
		return
	}
	if e.gate != nil && !e.gate() {
		return
	}

	wav := audio.EncodeWAV(pcm, e.cfg.Audio)
	encoded := base64.StdEncoding.EncodeToString(wav)
	if e.transmit != nil {
		e.transmit(encoded, e.cfg.Language, time.Now())
	}
}
