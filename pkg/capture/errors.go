package capture

import "errors"

// Sentinel errors for the session lifecycle. Step failures that carry a
// native status wrap these, so callers can match with errors.Is.
var (
	// ErrAlreadyRecording is returned by Start while a session is
	// running. Nothing is torn down; the running session is untouched.
	ErrAlreadyRecording = errors.New("capture: session already running")

	// ErrProcessNotFound is returned when the PID has no audio presence.
	ErrProcessNotFound = errors.New("capture: process not found")

	// ErrDeviceNotFound is returned when an explicitly chosen output
	// device cannot be resolved to a live handle.
	ErrDeviceNotFound = errors.New("capture: output device not found")

	// ErrTapCreation is returned when the HAL refuses the process tap.
	ErrTapCreation = errors.New("capture: tap creation failed")

	// ErrUnsupportedFormat is returned when the tap does not deliver
	// floating-point linear PCM.
	ErrUnsupportedFormat = errors.New("capture: tap format is not float PCM")

	// ErrAggregateCreation is returned when the aggregate device
	// cannot be created.
	ErrAggregateCreation = errors.New("capture: aggregate device creation failed")

	// ErrFileOpen is returned when the output file cannot be opened.
	ErrFileOpen = errors.New("capture: output file open failed")

	// ErrIOStart is returned when callback installation or device
	// start fails.
	ErrIOStart = errors.New("capture: device start failed")

	// ErrPermissionDenied is returned by the microphone path when the
	// system denies audio capture.
	ErrPermissionDenied = errors.New("capture: audio capture permission denied")
)
