// Package coreaudio defines the narrow surface of the macOS audio HAL that
// go-tapcast consumes, plus a mock implementation for CI testing.
//
// Two implementations exist:
//   - System (darwin, cgo) - talks to the real AudioHardware APIs
//   - Mock - in-memory object registry for tests without hardware
//
// All handles are opaque ObjectIDs; ownership and destroy ordering are the
// caller's responsibility.
package coreaudio

// ObjectID is an opaque handle to a native audio object (device, tap,
// aggregate, or process object). Zero means "no object".
type ObjectID uint32

// ObjectUnknown is the zero ObjectID.
const ObjectUnknown ObjectID = 0

// StreamFormat describes the sample layout a tap or device delivers.
type StreamFormat struct {
	SampleRate float64 `json:"sample_rate"`
	Channels   uint32  `json:"channels"`

	// FloatPCM is true when samples are 32-bit float linear PCM.
	// Everything in this system requires FloatPCM.
	FloatPCM bool `json:"float_pcm"`
}

// Buffer is one callback delivery of interleaved float32 samples.
type Buffer struct {
	Samples []float32
	Format  StreamFormat
}

// Frames returns the per-channel frame count of the buffer.
func (b Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / int(b.Format.Channels)
}

// IOProc is the real-time callback invoked by the HAL with new audio.
// It runs on an OS-scheduled real-time thread, never the control plane,
// and must not block.
type IOProc func(buf Buffer)

// IOProcToken identifies an installed IOProc so it can be removed.
type IOProcToken uint64

// Scope selects a device direction for enumeration.
type Scope int

// Device enumeration scopes.
const (
	ScopeOutput Scope = iota
	ScopeInput
)

// ProcessInfo describes a process known to the audio registry.
type ProcessInfo struct {
	PID    int      `json:"pid"`
	Object ObjectID `json:"object"`
	Name   string   `json:"name"`
}

// TapDescriptor specifies a process tap to create.
type TapDescriptor struct {
	// Name carries the reserved prefix so a leftover tap is
	// recognizable by the orphan reclaimer.
	Name string

	// ProcessObjects are the audio object handles of the tapped processes.
	ProcessObjects []ObjectID

	// SessionUUID cross-references the tap from an aggregate's tap list.
	SessionUUID string
}

// AggregateDescriptor specifies an aggregate device to create.
type AggregateDescriptor struct {
	// Name is the device name. Reserved-prefix naming makes leftovers
	// recognizable across process restarts.
	Name string

	// UID is a freshly generated unique identifier for the aggregate.
	UID string

	// MainSubDeviceUID is the UID of the physical output device the
	// aggregate mixes into.
	MainSubDeviceUID string

	// Private keeps the aggregate out of system-wide device pickers.
	Private bool

	// TapUUIDs binds process taps into the aggregate by session UUID.
	TapUUIDs []string
}

// HAL is the set of native audio operations go-tapcast consumes.
// Create/destroy calls pair manually; nothing here tracks ownership.
type HAL interface {
	// ResolveProcessObject translates a PID to its audio object handle.
	// Returns ObjectUnknown with a nil error when the process has no
	// audio presence.
	ResolveProcessObject(pid int) (ObjectID, error)

	// DefaultOutputDevice returns the system default output device.
	DefaultOutputDevice() (ObjectID, error)

	// DefaultInputDevice returns the system default input device.
	DefaultInputDevice() (ObjectID, error)

	// DeviceUID reads the persistent UID string of a device.
	DeviceUID(device ObjectID) (string, error)

	// DeviceByUID resolves a device UID back to a live handle.
	DeviceByUID(uid string) (ObjectID, error)

	// CreateProcessTap creates a tap on the processes in the descriptor.
	CreateProcessTap(desc TapDescriptor) (ObjectID, error)

	// TapStreamFormat reads the stream format the tap delivers.
	TapStreamFormat(tap ObjectID) (StreamFormat, error)

	// DeviceStreamFormat reads the stream format of a device in the
	// given scope. Used by the microphone path.
	DeviceStreamFormat(device ObjectID, scope Scope) (StreamFormat, error)

	// CreateAggregateDevice creates a private aggregate device.
	CreateAggregateDevice(desc AggregateDescriptor) (ObjectID, error)

	// InstallIOProc installs a real-time callback on a device.
	InstallIOProc(device ObjectID, proc IOProc) (IOProcToken, error)

	// Start begins hardware IO on a device.
	Start(device ObjectID, token IOProcToken) error

	// Stop halts hardware IO. Best-effort; a non-nil error is advisory.
	Stop(device ObjectID, token IOProcToken) error

	// RemoveIOProc uninstalls a callback. After it returns no further
	// invocations begin, though one may still be in flight.
	RemoveIOProc(device ObjectID, token IOProcToken) error

	// DestroyAggregateDevice destroys an aggregate device.
	DestroyAggregateDevice(device ObjectID) error

	// DestroyProcessTap destroys a process tap.
	DestroyProcessTap(tap ObjectID) error

	// AllObjects enumerates every audio object known to the system.
	AllObjects() ([]ObjectID, error)

	// Devices enumerates audio devices, input-capable or output-capable
	// depending on scope.
	Devices(scope Scope) ([]ObjectID, error)

	// Processes enumerates processes with an audio presence.
	Processes() ([]ProcessInfo, error)

	// ObjectName reads an object's name; empty when unreadable.
	ObjectName(obj ObjectID) string

	// ObjectUID reads an object's UID; empty when unreadable.
	ObjectUID(obj ObjectID) string
}
