package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

// memSink is an in-memory Sink for driving the recorder without files.
type memSink struct {
	mu      sync.Mutex
	appends [][]float32
	closed  bool
	failure error
}

func (s *memSink) Append(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.appends = append(s.appends, cp)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appends)
}

func (s *memSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func memFactory(sink *memSink) SinkFactory {
	return func(path string, format coreaudio.StreamFormat) (Sink, error) {
		return sink, nil
	}
}

// opNames strips the object ids from the mock's operation log.
func opNames(ops []string) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = strings.SplitN(op, ":", 2)[0]
	}
	return names
}

func reservedObjects(m *coreaudio.Mock) int {
	return m.LiveObjects(func(name, uid string) bool {
		return HasReservedPrefix(name) || HasReservedPrefix(uid)
	})
}

func TestStartStopLifecycle(t *testing.T) {
	mock := coreaudio.NewMock(coreaudio.WithProcess(42, "Music"))
	sink := &memSink{}

	var finished []string
	rec := New(mock,
		WithSinkFactory(memFactory(sink)),
		WithOnFinished(func(path string) { finished = append(finished, path) }),
	)

	if err := rec.Start(42, StartOptions{OutputPath: "out.wav"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !rec.Recording() {
		t.Fatal("Recording() = false after Start")
	}
	if got := rec.OutputPath(); got != "out.wav" {
		t.Errorf("OutputPath = %q, want out.wav", got)
	}
	format, ok := rec.Format()
	if !ok || !format.FloatPCM || format.Channels != 2 {
		t.Errorf("Format = %+v, %v", format, ok)
	}

	for i := 0; i < 3; i++ {
		mock.Deliver(coreaudio.Buffer{
			Samples: []float32{0.1, -0.1, 0.2, -0.2},
			Format:  format,
		})
	}
	if got := sink.appendCount(); got != 3 {
		t.Errorf("sink received %d buffers, want 3", got)
	}
	stats, ok := rec.Stats()
	if !ok || stats.Buffers != 3 || stats.WriteErrors != 0 {
		t.Errorf("Stats = %+v, %v", stats, ok)
	}

	if path := rec.Stop(); path != "out.wav" {
		t.Errorf("Stop returned %q, want out.wav", path)
	}
	if rec.Recording() {
		t.Error("Recording() = true after Stop")
	}
	if !sink.isClosed() {
		t.Error("sink not closed after Stop")
	}
	if len(finished) != 1 || finished[0] != "out.wav" {
		t.Errorf("onFinished calls = %v, want exactly one with out.wav", finished)
	}

	want := []string{
		"CreateProcessTap",
		"CreateAggregateDevice",
		"InstallIOProc",
		"Start",
		"Stop",
		"RemoveIOProc",
		"DestroyAggregateDevice",
		"DestroyProcessTap",
	}
	got := opNames(mock.Ops)
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}

	if n := reservedObjects(mock); n != 0 {
		t.Errorf("%d reserved objects remain after Stop", n)
	}
}

func TestStartUnknownProcess(t *testing.T) {
	mock := coreaudio.NewMock()
	rec := New(mock, WithSinkFactory(memFactory(&memSink{})))

	err := rec.Start(9999, StartOptions{OutputPath: "out.wav"})
	if !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("Start(unknown pid) = %v, want ErrProcessNotFound", err)
	}
	if rec.Recording() {
		t.Error("Recording() = true after failed Start")
	}
	if n := reservedObjects(mock); n != 0 {
		t.Errorf("%d reserved objects created for unknown process", n)
	}
}

func TestStartWhileRecording(t *testing.T) {
	mock := coreaudio.NewMock(
		coreaudio.WithProcess(1, "First"),
		coreaudio.WithProcess(2, "Second"),
	)
	sink := &memSink{}
	rec := New(mock, WithSinkFactory(memFactory(sink)))

	if err := rec.Start(1, StartOptions{OutputPath: "a.wav"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := len(mock.Ops)

	err := rec.Start(2, StartOptions{OutputPath: "b.wav"})
	if !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start = %v, want ErrAlreadyRecording", err)
	}
	if len(mock.Ops) != before {
		t.Errorf("second Start touched the HAL: %v", mock.Ops[before:])
	}
	if got := rec.OutputPath(); got != "a.wav" {
		t.Errorf("first session disturbed: OutputPath = %q", got)
	}
	rec.Stop()
}

func TestStartUnsupportedFormat(t *testing.T) {
	mock := coreaudio.NewMock(
		coreaudio.WithProcess(7, "Legacy"),
		coreaudio.WithTapFormat(coreaudio.StreamFormat{
			SampleRate: 44100, Channels: 2, FloatPCM: false,
		}),
	)
	rec := New(mock, WithSinkFactory(memFactory(&memSink{})))

	for attempt := 0; attempt < 2; attempt++ {
		err := rec.Start(7, StartOptions{OutputPath: "out.wav"})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("attempt %d: Start = %v, want ErrUnsupportedFormat", attempt, err)
		}
		if n := reservedObjects(mock); n != 0 {
			t.Fatalf("attempt %d: %d reserved objects remain after format rejection", attempt, n)
		}
	}
}

func TestStartExplicitDevice(t *testing.T) {
	mock := coreaudio.NewMock(
		coreaudio.WithProcess(3, "Player"),
		coreaudio.WithOutputDevice("USB Interface", "usb-audio-1"),
	)
	rec := New(mock, WithSinkFactory(memFactory(&memSink{})))

	err := rec.Start(3, StartOptions{OutputPath: "out.wav", DeviceUID: "no-such-device"})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("Start(bad uid) = %v, want ErrDeviceNotFound", err)
	}
	if n := reservedObjects(mock); n != 0 {
		t.Fatalf("%d reserved objects remain after device lookup failure", n)
	}

	if err := rec.Start(3, StartOptions{OutputPath: "out.wav", DeviceUID: "usb-audio-1"}); err != nil {
		t.Fatalf("Start(usb-audio-1): %v", err)
	}
	rec.Stop()
}

func TestStopWhenIdle(t *testing.T) {
	mock := coreaudio.NewMock()
	called := false
	rec := New(mock, WithOnFinished(func(string) { called = true }))

	if path := rec.Stop(); path != "" {
		t.Errorf("Stop on idle recorder returned %q", path)
	}
	if called {
		t.Error("onFinished invoked with no recording")
	}
	if len(mock.Ops) != 0 {
		t.Errorf("idle Stop touched the HAL: %v", mock.Ops)
	}
}

func TestStartRollback(t *testing.T) {
	cases := []struct {
		name    string
		failOp  string
		sinkErr bool
		wantErr error
	}{
		{name: "tap creation", failOp: "CreateProcessTap", wantErr: ErrTapCreation},
		{name: "aggregate creation", failOp: "CreateAggregateDevice", wantErr: ErrAggregateCreation},
		{name: "sink open", sinkErr: true, wantErr: ErrFileOpen},
		{name: "callback install", failOp: "InstallIOProc", wantErr: ErrIOStart},
		{name: "device start", failOp: "Start", wantErr: ErrIOStart},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := []coreaudio.MockOption{coreaudio.WithProcess(5, "Target")}
			if tc.failOp != "" {
				opts = append(opts, coreaudio.WithFailure(tc.failOp, coreaudio.StatusHardwareError))
			}
			mock := coreaudio.NewMock(opts...)

			sink := &memSink{}
			factory := memFactory(sink)
			if tc.sinkErr {
				factory = func(string, coreaudio.StreamFormat) (Sink, error) {
					return nil, fmt.Errorf("disk full")
				}
			}
			rec := New(mock, WithSinkFactory(factory))

			err := rec.Start(5, StartOptions{OutputPath: "out.wav"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Start = %v, want %v", err, tc.wantErr)
			}
			if rec.Recording() {
				t.Error("Recording() = true after failed Start")
			}
			if n := reservedObjects(mock); n != 0 {
				t.Errorf("%d reserved objects leaked (ops: %v)", n, mock.Ops)
			}
			if !tc.sinkErr && tc.failOp == "Start" && !sink.isClosed() {
				t.Error("sink left open after rollback")
			}
		})
	}
}

func TestWriteErrorSurfaced(t *testing.T) {
	mock := coreaudio.NewMock(coreaudio.WithProcess(8, "Flaky"))
	sink := &memSink{failure: fmt.Errorf("device gone")}
	rec := New(mock, WithSinkFactory(memFactory(sink)))

	if err := rec.Start(8, StartOptions{OutputPath: "out.wav"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	format, _ := rec.Format()
	mock.Deliver(coreaudio.Buffer{Samples: []float32{0.5, 0.5}, Format: format})

	if err := rec.Err(); err == nil || !strings.Contains(err.Error(), "device gone") {
		t.Errorf("Err = %v, want the write failure", err)
	}
	if !rec.Recording() {
		t.Error("a single write failure must not stop the session")
	}
	stats, _ := rec.Stats()
	if stats.WriteErrors != 1 {
		t.Errorf("WriteErrors = %d, want 1", stats.WriteErrors)
	}
	rec.Stop()
}
