package coreaudio

import (
	"errors"
	"testing"
)

func TestMockDestroyKindPairing(t *testing.T) {
	m := NewMock(WithProcess(1, "App"))

	tap, err := m.CreateProcessTap(TapDescriptor{
		Name:           "TestTap",
		ProcessObjects: []ObjectID{mustResolve(t, m, 1)},
		SessionUUID:    "s-1",
	})
	if err != nil {
		t.Fatalf("CreateProcessTap: %v", err)
	}
	agg, err := m.CreateAggregateDevice(AggregateDescriptor{Name: "TestAgg", UID: "agg-1"})
	if err != nil {
		t.Fatalf("CreateAggregateDevice: %v", err)
	}

	// Destroying with the wrong call must fail, like the real HAL.
	if err := m.DestroyAggregateDevice(tap); !errors.Is(err, StatusNotFound) {
		t.Errorf("DestroyAggregateDevice(tap) = %v, want StatusNotFound", err)
	}
	if err := m.DestroyProcessTap(agg); !errors.Is(err, StatusNotFound) {
		t.Errorf("DestroyProcessTap(aggregate) = %v, want StatusNotFound", err)
	}

	if err := m.DestroyProcessTap(tap); err != nil {
		t.Errorf("DestroyProcessTap(tap) = %v", err)
	}
	if err := m.DestroyAggregateDevice(agg); err != nil {
		t.Errorf("DestroyAggregateDevice(aggregate) = %v", err)
	}
}

func TestMockDeliverReachesStartedProcsOnly(t *testing.T) {
	m := NewMock()
	device, err := m.DefaultOutputDevice()
	if err != nil {
		t.Fatalf("DefaultOutputDevice: %v", err)
	}

	var calls int
	token, err := m.InstallIOProc(device, func(Buffer) { calls++ })
	if err != nil {
		t.Fatalf("InstallIOProc: %v", err)
	}

	m.Deliver(Buffer{Samples: []float32{0.1}})
	if calls != 0 {
		t.Fatal("Deliver reached a proc that was never started")
	}

	if err := m.Start(device, token); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Deliver(Buffer{Samples: []float32{0.1}})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	if err := m.Stop(device, token); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	m.Deliver(Buffer{Samples: []float32{0.1}})
	if calls != 1 {
		t.Fatalf("Deliver reached a stopped proc")
	}
}

func TestMockDeviceLookup(t *testing.T) {
	m := NewMock(WithOutputDevice("USB Interface", "usb-1"))

	id, err := m.DeviceByUID("usb-1")
	if err != nil {
		t.Fatalf("DeviceByUID: %v", err)
	}
	if got := m.ObjectName(id); got != "USB Interface" {
		t.Errorf("ObjectName = %q", got)
	}
	uid, err := m.DeviceUID(id)
	if err != nil || uid != "usb-1" {
		t.Errorf("DeviceUID = %q, %v", uid, err)
	}

	if _, err := m.DeviceByUID("nope"); !errors.Is(err, StatusNotFound) {
		t.Errorf("DeviceByUID(unknown) = %v, want StatusNotFound", err)
	}
}

func TestMockProcessRegistry(t *testing.T) {
	m := NewMock(WithProcess(42, "Music"))

	obj, err := m.ResolveProcessObject(42)
	if err != nil || obj == ObjectUnknown {
		t.Fatalf("ResolveProcessObject(42) = %v, %v", obj, err)
	}
	obj, err = m.ResolveProcessObject(7)
	if err != nil || obj != ObjectUnknown {
		t.Fatalf("ResolveProcessObject(unknown) = %v, %v, want ObjectUnknown", obj, err)
	}

	procs, err := m.Processes()
	if err != nil || len(procs) != 1 || procs[0].PID != 42 || procs[0].Name != "Music" {
		t.Fatalf("Processes = %v, %v", procs, err)
	}
}

func mustResolve(t *testing.T, m *Mock, pid int) ObjectID {
	t.Helper()
	obj, err := m.ResolveProcessObject(pid)
	if err != nil || obj == ObjectUnknown {
		t.Fatalf("ResolveProcessObject(%d) = %v, %v", pid, obj, err)
	}
	return obj
}
