package domain

import "errors"

var (
	// Tracking engine acquisition failures. Each classification carries a
	// distinct operator-facing message; see UserMessage.
	ErrEngineMissing      = errors.New("tracking engine is not installed")
	ErrEngineOutdated     = errors.New("tracking engine needs an update")
	ErrHostAppOutdated    = errors.New("application is too old for the installed tracking engine")
	ErrDeviceIncompatible = errors.New("device does not support spatial tracking")
	ErrCameraBusy         = errors.New("camera is in use by another process")
	ErrPermissionDenied   = errors.New("camera permission denied")

	ErrSessionClosed          = errors.New("session is closed")
	ErrSessionBusy            = errors.New("a session is already in progress")
	ErrNoPeerConnection       = errors.New("no peer connection")
	ErrInvalidMode            = errors.New("invalid stream mode")
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")
	ErrQueueClosed            = errors.New("broadcast queue is closed")
	ErrChannelNotOpen         = errors.New("metadata channel is not open")
)

// UserMessage maps a classified acquisition failure to the message shown to
// the operator. Unclassified errors fall back to their own text.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEngineMissing):
		return "Spatial tracking is unavailable: the tracking engine is not installed."
	case errors.Is(err, ErrEngineOutdated):
		return "Spatial tracking is unavailable: update the tracking engine and try again."
	case errors.Is(err, ErrHostAppOutdated):
		return "Spatial tracking is unavailable: this application needs an update to use the installed tracking engine."
	case errors.Is(err, ErrDeviceIncompatible):
		return "Spatial tracking is not supported on this device."
	case errors.Is(err, ErrCameraBusy):
		return "The camera is in use by another application. Close it and try again."
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied. Grant the camera permission and try again."
	default:
		return err.Error()
	}
}
