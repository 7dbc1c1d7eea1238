package core

import (
	"fmt"
)

// Error represents a session-level error surfaced to the participant.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	CloseCode int       `json:"close_code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrConnection        ErrorType = "connection_error"
	ErrAbnormalClose     ErrorType = "abnormal_close"
	ErrDeviceUnavailable ErrorType = "device_unavailable"
	ErrAudioCapture      ErrorType = "audio_capture_error"
	ErrProtocolDecode    ErrorType = "protocol_decode_error"
	ErrInvalidRequest    ErrorType = "invalid_request_error"
)

// NewConnectionError reports a transport that failed to open or errored while open.
func NewConnectionError(message string) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: message,
	}
}

// NewAbnormalCloseError reports a close with a non-normal websocket code.
func NewAbnormalCloseError(code int, reason string) *Error {
	message := fmt.Sprintf("connection closed abnormally (code %d)", code)
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	return &Error{
		Type:      ErrAbnormalClose,
		Message:   message,
		CloseCode: code,
	}
}

// NewDeviceUnavailableError reports a capture device that could not be acquired.
func NewDeviceUnavailableError(message string) *Error {
	return &Error{
		Type:    ErrDeviceUnavailable,
		Message: message,
	}
}

// NewAudioCaptureError reports a failure during active capture.
func NewAudioCaptureError(message string) *Error {
	return &Error{
		Type:    ErrAudioCapture,
		Message: message,
	}
}

// NewProtocolDecodeError reports a malformed inbound payload. These are
// non-fatal; the frame is dropped.
func NewProtocolDecodeError(message string) *Error {
	return &Error{
		Type:    ErrProtocolDecode,
		Message: message,
	}
}

// NewInvalidRequestError reports a caller-side misuse of the client API.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// IsRetryable returns true if reconnecting may clear the error.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrConnection, ErrAbnormalClose:
		return true
	default:
		return false
	}
}
