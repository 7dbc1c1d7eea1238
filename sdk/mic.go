package meet

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

const micSampleRateHz = 16000

// NewFFmpegMicSource acquires the default microphone through an ffmpeg
// subprocess emitting mono 16 kHz s16le PCM on stdout.
func NewFFmpegMicSource() (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &ffmpegMicSource{cmd: cmd, stdout: stdout}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

type ffmpegMicSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (m *ffmpegMicSource) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

func (m *ffmpegMicSource) Close() error {
	if m == nil {
		return nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}
