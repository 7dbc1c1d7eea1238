package core

import (
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := NewAbnormalCloseError(1006, "peer vanished")
	if err.CloseCode != 1006 {
		t.Fatalf("close code=%d, want 1006", err.CloseCode)
	}
	if !strings.Contains(err.Error(), "1006") || !strings.Contains(err.Error(), "peer vanished") {
		t.Fatalf("error=%q, want code and reason present", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  *Error
		want bool
	}{
		{NewConnectionError("dial failed"), true},
		{NewAbnormalCloseError(1011, ""), true},
		{NewDeviceUnavailableError("no microphone"), false},
		{NewAudioCaptureError("stream ended"), false},
		{NewProtocolDecodeError("bad frame"), false},
		{NewInvalidRequestError("nil controller"), false},
	}
	for _, tc := range cases {
		if got := tc.err.IsRetryable(); got != tc.want {
			t.Fatalf("IsRetryable(%s)=%v, want %v", tc.err.Type, got, tc.want)
		}
	}
}
