package capture

import (
	"log/slog"
	"sync/atomic"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
	"github.com/audiofold/go-tapcast/pkg/levels"
)

// sinkBox wraps the Sink interface so the bridge can hold it behind an
// atomic.Pointer.
type sinkBox struct {
	sink Sink
}

// bridge is the real-time IO callback object. It runs on the HAL's
// real-time thread, so it must never block, never panic outward, and
// must tolerate being invoked after the control plane has started
// teardown: once disarm clears the sink reference, deliveries are
// dropped instead of touching a sink mid-close.
type bridge struct {
	sink   atomic.Pointer[sinkBox]
	format coreaudio.StreamFormat
	logger *slog.Logger

	// onLevels, when set, receives per-channel dBFS for each buffer.
	// Stateless side read of the samples; never affects the write.
	onLevels func(dbfs []float64)

	buffers   atomic.Int64
	dropped   atomic.Int64
	writeErrs atomic.Int64
	lastErr   atomic.Value // error
}

func newBridge(sink Sink, format coreaudio.StreamFormat, logger *slog.Logger, onLevels func([]float64)) *bridge {
	b := &bridge{format: format, logger: logger, onLevels: onLevels}
	b.sink.Store(&sinkBox{sink: sink})
	return b
}

// ioProc is installed on the aggregate device. Write failures are
// recorded and logged but never raised into the HAL's control flow.
func (b *bridge) ioProc(buf coreaudio.Buffer) {
	box := b.sink.Load()
	if box == nil {
		b.dropped.Add(1)
		return
	}

	b.buffers.Add(1)
	if err := box.sink.Append(buf.Samples); err != nil {
		b.writeErrs.Add(1)
		b.lastErr.Store(err)
		b.logger.Error("buffer write failed", "error", err)
	}

	if b.onLevels != nil {
		rms := levels.RMS(buf.Samples, int(b.format.Channels))
		dbfs := make([]float64, len(rms))
		for i, v := range rms {
			dbfs[i] = levels.DBFS(v)
		}
		b.onLevels(dbfs)
	}
}

// disarm clears the sink reference. Called by the control plane after
// the device is stopped and the callback removed; a stray in-flight
// invocation that lands afterwards drops its buffer.
func (b *bridge) disarm() {
	b.sink.Store(nil)
}

// Err returns the most recent write failure, if any.
func (b *bridge) Err() error {
	if err, ok := b.lastErr.Load().(error); ok {
		return err
	}
	return nil
}

// BridgeStats is a snapshot of bridge counters.
type BridgeStats struct {
	Buffers     int64 `json:"buffers"`
	Dropped     int64 `json:"dropped"`
	WriteErrors int64 `json:"write_errors"`
}

func (b *bridge) stats() BridgeStats {
	return BridgeStats{
		Buffers:     b.buffers.Load(),
		Dropped:     b.dropped.Load(),
		WriteErrors: b.writeErrs.Load(),
	}
}
