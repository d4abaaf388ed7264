package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

// MicRecorder captures the default input device to a file. It is an
// independent path from the process-tap session: no tap, no aggregate,
// just a callback installed directly on the input device. The system
// may deny capture outright; that surfaces as ErrPermissionDenied.
type MicRecorder struct {
	hal     coreaudio.HAL
	logger  *slog.Logger
	newSink SinkFactory

	mu     sync.Mutex
	device coreaudio.ObjectID
	token  coreaudio.IOProcToken
	bridge *bridge
	sink   Sink
	path   string
}

// NewMicRecorder creates a microphone recorder.
func NewMicRecorder(h coreaudio.HAL, logger *slog.Logger) *MicRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MicRecorder{hal: h, logger: logger, newSink: wavSinkFactory}
}

// Start begins capturing the default input device to path.
func (m *MicRecorder) Start(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink != nil {
		return ErrAlreadyRecording
	}

	device, err := m.hal.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("%w: no default input device", ErrDeviceNotFound)
	}

	format, err := m.hal.DeviceStreamFormat(device, coreaudio.ScopeInput)
	if err != nil {
		return mapMicErr(err)
	}
	if !format.FloatPCM {
		return fmt.Errorf("%w: got %+v", ErrUnsupportedFormat, format)
	}

	sink, err := m.newSink(path, format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOpen, err)
	}

	bridge := newBridge(sink, format, m.logger, nil)
	token, err := m.hal.InstallIOProc(device, bridge.ioProc)
	if err != nil {
		sink.Close()
		return mapMicErr(err)
	}
	if err := m.hal.Start(device, token); err != nil {
		m.hal.RemoveIOProc(device, token)
		sink.Close()
		return mapMicErr(err)
	}

	m.device = device
	m.token = token
	m.bridge = bridge
	m.sink = sink
	m.path = path
	m.logger.Info("microphone recording started", "path", path,
		"sample_rate", format.SampleRate, "channels", format.Channels)
	return nil
}

// Stop ends the capture. Same teardown ordering discipline as the
// session controller: stop, remove callback, disarm, close. No-op when
// idle; returns the finished file's path.
func (m *MicRecorder) Stop() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink == nil {
		return ""
	}
	path := m.path

	if err := m.hal.Stop(m.device, m.token); err != nil {
		m.logger.Warn("microphone stop failed", "error", err)
	}
	if err := m.hal.RemoveIOProc(m.device, m.token); err != nil {
		m.logger.Warn("microphone callback removal failed", "error", err)
	}
	m.bridge.disarm()
	if err := m.sink.Close(); err != nil {
		m.logger.Warn("microphone sink close failed", "error", err)
	}

	m.device = coreaudio.ObjectUnknown
	m.token = 0
	m.bridge = nil
	m.sink = nil
	m.path = ""
	m.logger.Info("microphone recording stopped", "path", path)
	return path
}

// Recording reports whether a microphone capture is active.
func (m *MicRecorder) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink != nil
}

// mapMicErr converts a native permission status to ErrPermissionDenied.
func mapMicErr(err error) error {
	var status coreaudio.Status
	if errors.As(err, &status) && status == coreaudio.StatusPermission {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrIOStart, err)
}
