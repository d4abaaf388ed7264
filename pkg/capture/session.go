package capture

import "github.com/audiofold/go-tapcast/pkg/coreaudio"

// phase is the session lifecycle position. Every phase past phaseIdle
// owns native resources that rollback must release in reverse order.
type phase int

const (
	phaseIdle phase = iota
	phaseTapCreated
	phaseFormatValidated
	phaseAggregateCreated
	phaseSinkOpen
	phaseRunning
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseTapCreated:
		return "tap_created"
	case phaseFormatValidated:
		return "format_validated"
	case phaseAggregateCreated:
		return "aggregate_created"
	case phaseSinkOpen:
		return "sink_open"
	case phaseRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Sink receives PCM buffers in delivery order. *wav.Writer satisfies it.
type Sink interface {
	Append(samples []float32) error
	Close() error
}

// session is the single mutable record of one recording. It is owned
// exclusively by the Recorder and never reused across recordings.
type session struct {
	pid        int
	processObj coreaudio.ObjectID

	outputDevice coreaudio.ObjectID
	outputUID    string

	tap            coreaudio.ObjectID
	tapSessionUUID string

	aggregate coreaudio.ObjectID
	format    coreaudio.StreamFormat

	outputPath string
	sink       Sink
	bridge     *bridge
	token      coreaudio.IOProcToken

	phase phase
}
