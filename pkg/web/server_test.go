package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

func newTestServer(t *testing.T, opts ...coreaudio.MockOption) (*Server, *coreaudio.Mock) {
	t.Helper()
	mock := coreaudio.NewMock(opts...)
	s := NewServer("0", mock, nil)
	t.Cleanup(func() { s.recorder.Stop() })
	return s, mock
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStatusIdle(t *testing.T) {
	s, _ := newTestServer(t)

	resp := doJSON(t, s, "GET", "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body statusResponse
	decode(t, resp, &body)
	if body.Recording {
		t.Error("idle server reports recording")
	}
	if body.Path != "" || body.Format != nil {
		t.Errorf("idle status carries session fields: %+v", body)
	}
}

func TestRecordStartStop(t *testing.T) {
	s, _ := newTestServer(t, coreaudio.WithProcess(42, "Music"))
	path := filepath.Join(t.TempDir(), "rec.wav")

	resp := doJSON(t, s, "POST", "/api/record/start", startRequest{PID: 42, Path: path})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var started map[string]any
	decode(t, resp, &started)
	if started["path"] != path {
		t.Errorf("start path = %v, want %v", started["path"], path)
	}

	resp = doJSON(t, s, "GET", "/api/status", nil)
	var status statusResponse
	decode(t, resp, &status)
	if !status.Recording || status.Path != path {
		t.Errorf("status during recording = %+v", status)
	}
	if status.Format == nil || !status.Format.FloatPCM {
		t.Errorf("status format = %+v", status.Format)
	}

	// Starting again while recording conflicts.
	resp = doJSON(t, s, "POST", "/api/record/start", startRequest{PID: 42, Path: path})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, s, "POST", "/api/record/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	var stopped map[string]any
	decode(t, resp, &stopped)
	if stopped["path"] != path {
		t.Errorf("stop path = %v", stopped["path"])
	}

	// Stop when idle still succeeds.
	resp = doJSON(t, s, "POST", "/api/record/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("idle stop status = %d", resp.StatusCode)
	}
}

func TestStartErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		req  startRequest
		want int
	}{
		{"missing pid", startRequest{}, http.StatusBadRequest},
		{"unknown pid", startRequest{PID: 9999}, http.StatusNotFound},
		{"unknown device", startRequest{PID: 42, DeviceUID: "nope"}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, coreaudio.WithProcess(42, "Music"))
			if tc.req.Path == "" && tc.req.PID != 0 {
				tc.req.Path = filepath.Join(t.TempDir(), "rec.wav")
			}
			resp := doJSON(t, s, "POST", "/api/record/start", tc.req)
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestUnsupportedFormatMapsTo422(t *testing.T) {
	s, _ := newTestServer(t,
		coreaudio.WithProcess(7, "Legacy"),
		coreaudio.WithTapFormat(coreaudio.StreamFormat{SampleRate: 44100, Channels: 2, FloatPCM: false}),
	)
	resp := doJSON(t, s, "POST", "/api/record/start", startRequest{
		PID: 7, Path: filepath.Join(t.TempDir(), "rec.wav"),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestDeviceList(t *testing.T) {
	s, _ := newTestServer(t, coreaudio.WithOutputDevice("USB Interface", "usb-1"))

	resp := doJSON(t, s, "GET", "/api/devices", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var devices []deviceResponse
	decode(t, resp, &devices)

	uids := make(map[string]string)
	for _, d := range devices {
		uids[d.UID] = d.Name
	}
	if uids["mock-out"] == "" {
		t.Error("default output device missing from list")
	}
	if uids["usb-1"] != "USB Interface" {
		t.Errorf("devices = %v", devices)
	}
	if _, ok := uids["mock-in"]; ok {
		t.Error("input device listed as an output")
	}
}

func TestProcessList(t *testing.T) {
	s, _ := newTestServer(t, coreaudio.WithProcess(42, "Music"))

	resp := doJSON(t, s, "GET", "/api/processes", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var procs []coreaudio.ProcessInfo
	decode(t, resp, &procs)
	if len(procs) != 1 || procs[0].PID != 42 || procs[0].Name != "Music" {
		t.Errorf("processes = %v", procs)
	}
}

func TestStatusSurfacesWriteError(t *testing.T) {
	s, mock := newTestServer(t, coreaudio.WithProcess(8, "Flaky"))
	path := filepath.Join(t.TempDir(), "missing-dir", "nope.wav")

	// A bad destination fails the start, not a later write.
	resp := doJSON(t, s, "POST", "/api/record/start", startRequest{PID: 8, Path: path})
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 for unwritable path", resp.StatusCode)
	}
	if n := mock.LiveObjects(func(name, uid string) bool {
		return len(name) > 0 && name != "Mock Speakers" && name != "Mock Microphone" && name != "Flaky"
	}); n != 0 {
		t.Errorf("%d objects leaked after failed start", n)
	}
}
