// Package capture records the audio output of a single process by
// tapping it through the OS audio HAL and mixing the tap with a
// physical output device into a private aggregate device whose
// real-time callback appends PCM samples to a file.
//
// One Recorder owns at most one session at a time. Start acquires the
// native resources in order (tap, format check, aggregate, sink,
// callback, device start) and rolls the whole chain back on any
// failure; Stop releases them in reverse order. Construction sweeps the
// system for orphaned objects a crashed predecessor left behind.
package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
	"github.com/audiofold/go-tapcast/pkg/wav"
)

// SinkFactory opens a Sink for a destination path and stream format.
type SinkFactory func(path string, format coreaudio.StreamFormat) (Sink, error)

func wavSinkFactory(path string, format coreaudio.StreamFormat) (Sink, error) {
	return wav.Create(path, format)
}

// Recorder drives the tap/aggregate session lifecycle.
type Recorder struct {
	hal    coreaudio.HAL
	logger *slog.Logger

	newSink  SinkFactory
	onLevels func(dbfs []float64)

	// onFinished is invoked exactly once per recording with the
	// finished file's path, after all native resources are released.
	onFinished func(path string)

	// mu serializes the control plane. Start and Stop mutate the
	// session record in place without an atomic snapshot.
	mu   sync.Mutex
	sess *session
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithOnFinished registers a post-recording notification.
func WithOnFinished(fn func(path string)) Option {
	return func(r *Recorder) { r.onFinished = fn }
}

// WithLevelFunc registers a per-buffer dBFS callback. It is invoked
// from the real-time thread and must not block.
func WithLevelFunc(fn func(dbfs []float64)) Option {
	return func(r *Recorder) { r.onLevels = fn }
}

// WithSinkFactory overrides how sinks are opened. Default writes WAV.
func WithSinkFactory(fn SinkFactory) Option {
	return func(r *Recorder) { r.newSink = fn }
}

// New creates a Recorder and reclaims any orphaned native objects left
// behind by a previous crash before a new session can be started.
func New(h coreaudio.HAL, opts ...Option) *Recorder {
	r := &Recorder{
		hal:     h,
		logger:  slog.Default(),
		newSink: wavSinkFactory,
	}
	for _, opt := range opts {
		opt(r)
	}

	ReclaimOrphans(h, r.logger)
	return r
}

// StartOptions shape one recording.
type StartOptions struct {
	// OutputPath is the destination file. Required.
	OutputPath string

	// DeviceUID selects the physical output device the aggregate mixes
	// into. Trusted verbatim when set; empty means the system default
	// output device.
	DeviceUID string
}

// Start begins recording the audio of pid. On any mid-sequence failure
// everything already created is rolled back best-effort before the
// error is returned, so a failed Start never needs a matching Stop.
func (r *Recorder) Start(pid int, opts StartOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		return ErrAlreadyRecording
	}

	sess := &session{pid: pid, outputPath: opts.OutputPath, phase: phaseIdle}

	proc, err := r.hal.ResolveProcessObject(pid)
	if err != nil || proc == coreaudio.ObjectUnknown {
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	}
	sess.processObj = proc

	if opts.DeviceUID != "" {
		device, err := r.hal.DeviceByUID(opts.DeviceUID)
		if err != nil {
			return fmt.Errorf("%w: uid %q", ErrDeviceNotFound, opts.DeviceUID)
		}
		sess.outputDevice = device
		sess.outputUID = opts.DeviceUID
	} else {
		device, err := r.hal.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("%w: no default output device", ErrDeviceNotFound)
		}
		uid, err := r.hal.DeviceUID(device)
		if err != nil {
			return fmt.Errorf("%w: default output device has no uid", ErrDeviceNotFound)
		}
		sess.outputDevice = device
		sess.outputUID = uid
	}

	tapDesc := newTapDescriptor(pid, sess.processObj)
	tap, err := r.hal.CreateProcessTap(tapDesc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTapCreation, err)
	}
	sess.tap = tap
	sess.tapSessionUUID = tapDesc.SessionUUID
	sess.phase = phaseTapCreated

	format, err := r.hal.TapStreamFormat(tap)
	if err != nil || !format.FloatPCM {
		r.rollback(sess)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return fmt.Errorf("%w: got %+v", ErrUnsupportedFormat, format)
	}
	sess.format = format
	sess.phase = phaseFormatValidated

	aggDesc := newAggregateDescriptor(pid, sess.outputUID, sess.tapSessionUUID)
	aggregate, err := r.hal.CreateAggregateDevice(aggDesc)
	if err != nil {
		r.rollback(sess)
		return fmt.Errorf("%w: %w", ErrAggregateCreation, err)
	}
	sess.aggregate = aggregate
	sess.phase = phaseAggregateCreated

	sink, err := r.newSink(opts.OutputPath, format)
	if err != nil {
		r.rollback(sess)
		return fmt.Errorf("%w: %v", ErrFileOpen, err)
	}
	sess.sink = sink
	sess.bridge = newBridge(sink, format, r.logger, r.onLevels)
	sess.phase = phaseSinkOpen

	token, err := r.hal.InstallIOProc(aggregate, sess.bridge.ioProc)
	if err != nil {
		r.rollback(sess)
		return fmt.Errorf("%w: %w", ErrIOStart, err)
	}
	sess.token = token

	if err := r.hal.Start(aggregate, token); err != nil {
		r.rollback(sess)
		return fmt.Errorf("%w: %w", ErrIOStart, err)
	}

	sess.phase = phaseRunning
	r.sess = sess
	r.logger.Info("recording started",
		"pid", pid,
		"path", opts.OutputPath,
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
	)
	return nil
}

// Stop ends the active recording, releasing resources in
// reverse-of-creation order: halt hardware IO, remove the callback,
// close the sink, destroy the aggregate, destroy the tap. This ordering
// guarantees the real-time path cannot observe the sink mid-teardown.
// Teardown failures are absorbed and logged. No-op when idle.
//
// Returns the finished file's path, or "" if nothing was recording.
func (r *Recorder) Stop() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess == nil {
		return ""
	}
	sess := r.sess
	path := sess.outputPath

	if err := r.hal.Stop(sess.aggregate, sess.token); err != nil {
		r.logger.Warn("device stop failed", "error", err)
	}
	if err := r.hal.RemoveIOProc(sess.aggregate, sess.token); err != nil {
		r.logger.Warn("callback removal failed", "error", err)
	}
	sess.bridge.disarm()

	if err := sess.sink.Close(); err != nil {
		r.logger.Warn("sink close failed", "error", err)
	}

	if err := r.hal.DestroyAggregateDevice(sess.aggregate); err != nil {
		r.logger.Warn("aggregate destroy failed", "error", err)
	}
	if err := r.hal.DestroyProcessTap(sess.tap); err != nil {
		r.logger.Warn("tap destroy failed", "error", err)
	}

	stats := sess.bridge.stats()
	r.sess = nil
	r.logger.Info("recording stopped",
		"pid", sess.pid,
		"path", path,
		"buffers", stats.Buffers,
		"write_errors", stats.WriteErrors,
	)

	if r.onFinished != nil {
		r.onFinished(path)
	}
	return path
}

// rollback releases whatever a failed Start already created, in reverse
// creation order. Each step is best-effort: a failed destroy is logged
// and the remaining steps still run, since halting rollback leaks more
// than it protects.
func (r *Recorder) rollback(sess *session) {
	r.logger.Warn("rolling back failed start", "pid", sess.pid, "phase", sess.phase.String())

	if sess.token != 0 {
		if err := r.hal.RemoveIOProc(sess.aggregate, sess.token); err != nil {
			r.logger.Warn("rollback: callback removal failed", "error", err)
		}
	}
	if sess.phase >= phaseSinkOpen {
		sess.bridge.disarm()
		if err := sess.sink.Close(); err != nil {
			r.logger.Warn("rollback: sink close failed", "error", err)
		}
	}
	if sess.phase >= phaseAggregateCreated {
		if err := r.hal.DestroyAggregateDevice(sess.aggregate); err != nil {
			r.logger.Warn("rollback: aggregate destroy failed", "error", err)
		}
	}
	if sess.phase >= phaseTapCreated {
		if err := r.hal.DestroyProcessTap(sess.tap); err != nil {
			r.logger.Warn("rollback: tap destroy failed", "error", err)
		}
	}
	sess.phase = phaseIdle
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}

// OutputPath returns the active recording's destination, or "".
func (r *Recorder) OutputPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return ""
	}
	return r.sess.outputPath
}

// Format returns the active recording's stream format.
func (r *Recorder) Format() (coreaudio.StreamFormat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return coreaudio.StreamFormat{}, false
	}
	return r.sess.format, true
}

// Stats returns the active recording's bridge counters.
func (r *Recorder) Stats() (BridgeStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return BridgeStats{}, false
	}
	return r.sess.bridge.stats(), true
}

// Err surfaces the most recent write failure of the active recording.
// A single failed write does not stop the session; persistent failures
// are the caller's cue to Stop.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return nil
	}
	return r.sess.bridge.Err()
}
