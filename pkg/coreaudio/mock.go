package coreaudio

import (
	"fmt"
	"sync"
)

type objectKind int

const (
	kindDevice objectKind = iota
	kindAggregate
	kindTap
	kindProcess
)

type mockObject struct {
	kind      objectKind
	name      string
	uid       string
	hasOutput bool
	hasInput  bool
}

type mockProc struct {
	device  ObjectID
	proc    IOProc
	started bool
}

// Mock is an in-memory HAL for testing without hardware. It keeps a
// registry of objects, honors create/destroy kind pairing, records the
// order of operations, and lets tests script per-operation failures and
// drive the installed IOProc by hand.
type Mock struct {
	mu sync.Mutex

	nextID    ObjectID
	nextToken IOProcToken

	objects   map[ObjectID]*mockObject
	procs     map[IOProcToken]*mockProc
	processes map[int]ObjectID

	defaultOutput ObjectID
	defaultInput  ObjectID
	tapFormat     StreamFormat

	failures map[string]error

	// Ops records every mutating HAL call in order, for teardown-order
	// assertions. Format: "op:id".
	Ops []string
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithProcess registers a PID with an audio object handle.
func WithProcess(pid int, name string) MockOption {
	return func(m *Mock) {
		id := m.addObject(&mockObject{kind: kindProcess, name: name})
		m.processes[pid] = id
	}
}

// WithTapFormat sets the stream format taps report.
func WithTapFormat(f StreamFormat) MockOption {
	return func(m *Mock) { m.tapFormat = f }
}

// WithFailure scripts an error return for the named operation
// (e.g. "CreateProcessTap", "Start").
func WithFailure(op string, err error) MockOption {
	return func(m *Mock) { m.failures[op] = err }
}

// WithLeftoverAggregate registers a pre-existing aggregate device, as a
// crashed session would leave behind.
func WithLeftoverAggregate(name, uid string) MockOption {
	return func(m *Mock) {
		m.addObject(&mockObject{kind: kindAggregate, name: name, uid: uid, hasOutput: true})
	}
}

// WithLeftoverTap registers a pre-existing process tap.
func WithLeftoverTap(name, uid string) MockOption {
	return func(m *Mock) {
		m.addObject(&mockObject{kind: kindTap, name: name, uid: uid})
	}
}

// WithOutputDevice registers an extra output device.
func WithOutputDevice(name, uid string) MockOption {
	return func(m *Mock) {
		m.addObject(&mockObject{kind: kindDevice, name: name, uid: uid, hasOutput: true})
	}
}

// NewMock creates a Mock with a default output and input device.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		nextID:    100,
		objects:   make(map[ObjectID]*mockObject),
		procs:     make(map[IOProcToken]*mockProc),
		processes: make(map[int]ObjectID),
		failures:  make(map[string]error),
		tapFormat: StreamFormat{SampleRate: 48000, Channels: 2, FloatPCM: true},
	}
	m.defaultOutput = m.addObject(&mockObject{
		kind: kindDevice, name: "Mock Speakers", uid: "mock-out", hasOutput: true,
	})
	m.defaultInput = m.addObject(&mockObject{
		kind: kindDevice, name: "Mock Microphone", uid: "mock-in", hasInput: true,
	})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) addObject(obj *mockObject) ObjectID {
	m.nextID++
	id := m.nextID
	m.objects[id] = obj
	return id
}

func (m *Mock) fail(op string) error {
	return m.failures[op]
}

func (m *Mock) record(op string, id ObjectID) {
	m.Ops = append(m.Ops, fmt.Sprintf("%s:%d", op, id))
}

// ResolveProcessObject implements HAL.
func (m *Mock) ResolveProcessObject(pid int) (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ResolveProcessObject"); err != nil {
		return ObjectUnknown, err
	}
	return m.processes[pid], nil
}

// DefaultOutputDevice implements HAL.
func (m *Mock) DefaultOutputDevice() (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DefaultOutputDevice"); err != nil {
		return ObjectUnknown, err
	}
	return m.defaultOutput, nil
}

// DefaultInputDevice implements HAL.
func (m *Mock) DefaultInputDevice() (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DefaultInputDevice"); err != nil {
		return ObjectUnknown, err
	}
	return m.defaultInput, nil
}

// DeviceUID implements HAL.
func (m *Mock) DeviceUID(device ObjectID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[device]
	if !ok {
		return "", StatusNotFound
	}
	return obj.uid, nil
}

// DeviceByUID implements HAL.
func (m *Mock) DeviceByUID(uid string) (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, obj := range m.objects {
		if obj.kind == kindDevice && obj.uid == uid {
			return id, nil
		}
	}
	return ObjectUnknown, StatusNotFound
}

// CreateProcessTap implements HAL.
func (m *Mock) CreateProcessTap(desc TapDescriptor) (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateProcessTap"); err != nil {
		return ObjectUnknown, err
	}
	for _, p := range desc.ProcessObjects {
		if obj, ok := m.objects[p]; !ok || obj.kind != kindProcess {
			return ObjectUnknown, StatusNotFound
		}
	}
	name := desc.Name
	if name == "" {
		name = "Tap-" + desc.SessionUUID
	}
	id := m.addObject(&mockObject{
		kind: kindTap,
		name: name,
		uid:  desc.SessionUUID,
	})
	m.record("CreateProcessTap", id)
	return id, nil
}

// TapStreamFormat implements HAL.
func (m *Mock) TapStreamFormat(tap ObjectID) (StreamFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TapStreamFormat"); err != nil {
		return StreamFormat{}, err
	}
	if obj, ok := m.objects[tap]; !ok || obj.kind != kindTap {
		return StreamFormat{}, StatusNotFound
	}
	return m.tapFormat, nil
}

// DeviceStreamFormat implements HAL. The mock reports the tap format
// for any device.
func (m *Mock) DeviceStreamFormat(device ObjectID, scope Scope) (StreamFormat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeviceStreamFormat"); err != nil {
		return StreamFormat{}, err
	}
	if obj, ok := m.objects[device]; !ok || obj.kind != kindDevice && obj.kind != kindAggregate {
		return StreamFormat{}, StatusNotFound
	}
	return m.tapFormat, nil
}

// CreateAggregateDevice implements HAL.
func (m *Mock) CreateAggregateDevice(desc AggregateDescriptor) (ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateAggregateDevice"); err != nil {
		return ObjectUnknown, err
	}
	id := m.addObject(&mockObject{
		kind:      kindAggregate,
		name:      desc.Name,
		uid:       desc.UID,
		hasOutput: true,
	})
	m.record("CreateAggregateDevice", id)
	return id, nil
}

// InstallIOProc implements HAL.
func (m *Mock) InstallIOProc(device ObjectID, proc IOProc) (IOProcToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InstallIOProc"); err != nil {
		return 0, err
	}
	if _, ok := m.objects[device]; !ok {
		return 0, StatusNotFound
	}
	m.nextToken++
	m.procs[m.nextToken] = &mockProc{device: device, proc: proc}
	m.record("InstallIOProc", device)
	return m.nextToken, nil
}

// Start implements HAL.
func (m *Mock) Start(device ObjectID, token IOProcToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Start"); err != nil {
		return err
	}
	p, ok := m.procs[token]
	if !ok || p.device != device {
		return StatusNotFound
	}
	p.started = true
	m.record("Start", device)
	return nil
}

// Stop implements HAL.
func (m *Mock) Stop(device ObjectID, token IOProcToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Stop"); err != nil {
		return err
	}
	if p, ok := m.procs[token]; ok {
		p.started = false
	}
	m.record("Stop", device)
	return nil
}

// RemoveIOProc implements HAL.
func (m *Mock) RemoveIOProc(device ObjectID, token IOProcToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RemoveIOProc"); err != nil {
		return err
	}
	delete(m.procs, token)
	m.record("RemoveIOProc", device)
	return nil
}

// DestroyAggregateDevice implements HAL. It fails with StatusNotFound
// when the object does not exist or is not an aggregate, which is what
// lets the dual-attempt orphan reclaim discriminate kinds.
func (m *Mock) DestroyAggregateDevice(device ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DestroyAggregateDevice"); err != nil {
		return err
	}
	obj, ok := m.objects[device]
	if !ok || obj.kind != kindAggregate {
		return StatusNotFound
	}
	delete(m.objects, device)
	m.record("DestroyAggregateDevice", device)
	return nil
}

// DestroyProcessTap implements HAL.
func (m *Mock) DestroyProcessTap(tap ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DestroyProcessTap"); err != nil {
		return err
	}
	obj, ok := m.objects[tap]
	if !ok || obj.kind != kindTap {
		return StatusNotFound
	}
	delete(m.objects, tap)
	m.record("DestroyProcessTap", tap)
	return nil
}

// AllObjects implements HAL.
func (m *Mock) AllObjects() ([]ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AllObjects"); err != nil {
		return nil, err
	}
	ids := make([]ObjectID, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids, nil
}

// ObjectName implements HAL.
func (m *Mock) ObjectName(obj ObjectID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[obj]; ok {
		return o.name
	}
	return ""
}

// ObjectUID implements HAL.
func (m *Mock) ObjectUID(obj ObjectID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[obj]; ok {
		return o.uid
	}
	return ""
}

// Devices implements HAL.
func (m *Mock) Devices(scope Scope) ([]ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Devices"); err != nil {
		return nil, err
	}
	var ids []ObjectID
	for id, obj := range m.objects {
		if obj.kind != kindDevice {
			continue
		}
		if (scope == ScopeOutput && obj.hasOutput) || (scope == ScopeInput && obj.hasInput) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Processes implements HAL.
func (m *Mock) Processes() ([]ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Processes"); err != nil {
		return nil, err
	}
	var infos []ProcessInfo
	for pid, id := range m.processes {
		infos = append(infos, ProcessInfo{PID: pid, Object: id, Name: m.objects[id].name})
	}
	return infos, nil
}

// Deliver invokes every started IOProc with the buffer, simulating the
// real-time thread. Callers drive this by hand from tests.
func (m *Mock) Deliver(buf Buffer) {
	m.mu.Lock()
	var procs []IOProc
	for _, p := range m.procs {
		if p.started {
			procs = append(procs, p.proc)
		}
	}
	m.mu.Unlock()

	for _, proc := range procs {
		proc(buf)
	}
}

// LiveObjects returns how many objects whose name or UID matches the
// predicate still exist. Tests use this for orphan scans.
func (m *Mock) LiveObjects(match func(name, uid string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, obj := range m.objects {
		if match(obj.name, obj.uid) {
			n++
		}
	}
	return n
}

var _ HAL = (*Mock)(nil)
