package meet

import (
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/linguameet/meet-lite/pkg/core"
	"github.com/linguameet/meet-lite/pkg/core/audio"
)

// fakeCaptureSource feeds PCM chunks pushed by the test and blocks otherwise,
// standing in for the microphone stream.
type fakeCaptureSource struct {
	chunks   chan []byte
	failWith error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeCaptureSource() *fakeCaptureSource {
	return &fakeCaptureSource{
		chunks: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeCaptureSource) Read(p []byte) (int, error) {
	select {
	case chunk := <-f.chunks:
		if chunk == nil {
			if f.failWith != nil {
				return 0, f.failWith
			}
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeCaptureSource) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type capturedSegment struct {
	audioB64 string
	language string
}

func newTestCaptureEngine(t *testing.T, source *fakeCaptureSource, gateOpen *bool) (*CaptureEngine, chan capturedSegment) {
	t.Helper()

	segments := make(chan capturedSegment, 16)
	engine := NewCaptureEngine(
		CaptureConfig{
			FlushPeriod: 20 * time.Millisecond,
			Source:      func() (io.ReadCloser, error) { return source, nil },
			Language:    "en-US",
		},
		func(audioB64, language string, _ time.Time) {
			segments <- capturedSegment{audioB64: audioB64, language: language}
		},
		func() bool { return *gateOpen },
		nil,
	)
	return engine, segments
}

func TestCaptureEngine_FlushesBufferedAudioAsWAVSegments(t *testing.T) {
	t.Parallel()

	source := newFakeCaptureSource()
	gateOpen := true
	engine, segments := newTestCaptureEngine(t, source, &gateOpen)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	source.chunks <- []byte{1, 2, 3, 4}

	select {
	case seg := <-segments:
		if seg.language != "en-US" {
			t.Fatalf("language=%q, want en-US", seg.language)
		}
		wav, err := base64.StdEncoding.DecodeString(seg.audioB64)
		if err != nil {
			t.Fatalf("segment is not valid base64: %v", err)
		}
		pcm, cfg, err := audio.DecodeWAV(wav)
		if err != nil {
			t.Fatalf("segment is not a WAV container: %v", err)
		}
		if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.BitsPerSample != 16 {
			t.Fatalf("wav format=%+v, want 16 kHz mono s16le", cfg)
		}
		if len(pcm) != 4 {
			t.Fatalf("pcm length=%d, want 4", len(pcm))
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no segment flushed")
	}
}

func TestCaptureEngine_EmptyPeriodsProduceNoSegments(t *testing.T) {
	t.Parallel()

	source := newFakeCaptureSource()
	gateOpen := true
	engine, segments := newTestCaptureEngine(t, source, &gateOpen)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	select {
	case seg := <-segments:
		t.Fatalf("flushed segment %q from an empty buffer", seg.audioB64)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCaptureEngine_DiscardsSegmentsWhileGateClosed(t *testing.T) {
	t.Parallel()

	source := newFakeCaptureSource()
	gateOpen := false
	engine, segments := newTestCaptureEngine(t, source, &gateOpen)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	source.chunks <- []byte{9, 9, 9, 9}

	select {
	case seg := <-segments:
		t.Fatalf("transmitted segment %q while disconnected", seg.audioB64)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCaptureEngine_DeviceAcquisitionFailure(t *testing.T) {
	t.Parallel()

	engine := NewCaptureEngine(
		CaptureConfig{
			FlushPeriod: 20 * time.Millisecond,
			Source:      func() (io.ReadCloser, error) { return nil, errors.New("no such device") },
		},
		func(string, string, time.Time) {},
		func() bool { return true },
		nil,
	)

	err := engine.Start(t.Context())
	if err == nil {
		t.Fatalf("expected device error")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrDeviceUnavailable {
		t.Fatalf("error=%v, want %s", err, core.ErrDeviceUnavailable)
	}
	if coreErr.IsRetryable() {
		t.Fatalf("device errors must not be retryable")
	}
	if engine.Running() {
		t.Fatalf("engine running after failed Start")
	}
}

func TestCaptureEngine_ReadFailureStopsEngineAndReportsError(t *testing.T) {
	t.Parallel()

	source := newFakeCaptureSource()
	source.failWith = errors.New("stream torn down")

	reported := make(chan *core.Error, 1)
	engine := NewCaptureEngine(
		CaptureConfig{
			FlushPeriod: 20 * time.Millisecond,
			Source:      func() (io.ReadCloser, error) { return source, nil },
		},
		func(string, string, time.Time) {},
		func() bool { return true },
		func(err *core.Error) { reported <- err },
	)

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	source.chunks <- nil // trigger the read error

	select {
	case err := <-reported:
		if err.Type != core.ErrAudioCapture {
			t.Fatalf("error type=%s, want %s", err.Type, core.ErrAudioCapture)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("capture error never reported")
	}

	deadline := time.Now().Add(3 * time.Second)
	for engine.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("engine still running after read failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCaptureEngine_StopIsIdempotentAndDropsPartialBuffer(t *testing.T) {
	t.Parallel()

	source := newFakeCaptureSource()
	gateOpen := true
	engine, segments := newTestCaptureEngine(t, source, &gateOpen)

	// Long period so the buffered audio is still pending when Stop runs.
	engine.cfg.FlushPeriod = time.Hour

	if err := engine.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	source.chunks <- []byte{5, 5, 5, 5}
	time.Sleep(20 * time.Millisecond)

	engine.Stop()
	engine.Stop()
	engine.Stop()

	if engine.Running() {
		t.Fatalf("engine running after Stop")
	}
	select {
	case seg := <-segments:
		t.Fatalf("partial buffer %q flushed on Stop", seg.audioB64)
	case <-time.After(50 * time.Millisecond):
	}
}
