//go:build darwin

package coreaudio

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework CoreAudio -framework AudioToolbox -framework Foundation

#include <CoreAudio/CoreAudio.h>
#include <CoreAudio/AudioHardwareTapping.h>
#include <CoreAudio/CATapDescription.h>
#include <Foundation/Foundation.h>
#include <stdlib.h>
#include <string.h>

extern void tapcastDeliver(uintptr_t token, const AudioBufferList* buffers);

static OSStatus tapcastIOProc(AudioObjectID inDevice,
                              const AudioTimeStamp* inNow,
                              const AudioBufferList* inInputData,
                              const AudioTimeStamp* inInputTime,
                              AudioBufferList* outOutputData,
                              const AudioTimeStamp* inOutputTime,
                              void* inClientData) {
	if (inInputData != NULL) {
		tapcastDeliver((uintptr_t)inClientData, inInputData);
	}
	return kAudioHardwareNoError;
}

static OSStatus tapcastCreateIOProc(AudioObjectID device, uintptr_t token, AudioDeviceIOProcID* outProcID) {
	return AudioDeviceCreateIOProcID(device, tapcastIOProc, (void*)token, outProcID);
}

static OSStatus tapcastGetUInt32(AudioObjectID obj, AudioObjectPropertySelector sel,
                                 AudioObjectPropertyScope scope, UInt32* out) {
	AudioObjectPropertyAddress addr = { sel, scope, kAudioObjectPropertyElementMain };
	UInt32 size = sizeof(UInt32);
	return AudioObjectGetPropertyData(obj, &addr, 0, NULL, &size, out);
}

static OSStatus tapcastGetObjectID(AudioObjectID obj, AudioObjectPropertySelector sel, AudioObjectID* out) {
	AudioObjectPropertyAddress addr = { sel, kAudioObjectPropertyScopeGlobal, kAudioObjectPropertyElementMain };
	UInt32 size = sizeof(AudioObjectID);
	return AudioObjectGetPropertyData(obj, &addr, 0, NULL, &size, out);
}

static OSStatus tapcastTranslatePID(pid_t pid, AudioObjectID* out) {
	AudioObjectPropertyAddress addr = {
		kAudioHardwarePropertyTranslatePIDToProcessObject,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain
	};
	UInt32 size = sizeof(AudioObjectID);
	return AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr, sizeof(pid_t), &pid, &size, out);
}

static OSStatus tapcastCopyString(AudioObjectID obj, AudioObjectPropertySelector sel,
                                  char* out, int outLen) {
	AudioObjectPropertyAddress addr = { sel, kAudioObjectPropertyScopeGlobal, kAudioObjectPropertyElementMain };
	CFStringRef str = NULL;
	UInt32 size = sizeof(CFStringRef);
	OSStatus status = AudioObjectGetPropertyData(obj, &addr, 0, NULL, &size, &str);
	if (status != kAudioHardwareNoError) {
		return status;
	}
	if (str == NULL) {
		out[0] = 0;
		return kAudioHardwareNoError;
	}
	if (!CFStringGetCString(str, out, outLen, kCFStringEncodingUTF8)) {
		out[0] = 0;
	}
	CFRelease(str);
	return kAudioHardwareNoError;
}

static OSStatus tapcastTranslateUID(const char* uid, AudioObjectID* out) {
	CFStringRef str = CFStringCreateWithCString(kCFAllocatorDefault, uid, kCFStringEncodingUTF8);
	AudioObjectPropertyAddress addr = {
		kAudioHardwarePropertyTranslateUIDToDevice,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain
	};
	UInt32 size = sizeof(AudioObjectID);
	OSStatus status = AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr,
		sizeof(CFStringRef), &str, &size, out);
	CFRelease(str);
	return status;
}

static OSStatus tapcastListObjects(AudioObjectPropertySelector sel, AudioObjectID* out,
                                   int maxOut, int* outCount) {
	AudioObjectPropertyAddress addr = { sel, kAudioObjectPropertyScopeGlobal, kAudioObjectPropertyElementMain };
	UInt32 size = 0;
	OSStatus status = AudioObjectGetPropertyDataSize(kAudioObjectSystemObject, &addr, 0, NULL, &size);
	if (status != kAudioHardwareNoError) {
		return status;
	}
	int count = size / sizeof(AudioObjectID);
	if (count > maxOut) {
		count = maxOut;
	}
	size = count * sizeof(AudioObjectID);
	status = AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr, 0, NULL, &size, out);
	*outCount = (int)(size / sizeof(AudioObjectID));
	return status;
}

static int tapcastDeviceHasScope(AudioObjectID device, int input) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyStreamConfiguration,
		input ? kAudioDevicePropertyScopeInput : kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain
	};
	UInt32 size = 0;
	if (AudioObjectGetPropertyDataSize(device, &addr, 0, NULL, &size) != kAudioHardwareNoError || size == 0) {
		return 0;
	}
	AudioBufferList* list = (AudioBufferList*)malloc(size);
	int has = 0;
	if (AudioObjectGetPropertyData(device, &addr, 0, NULL, &size, list) == kAudioHardwareNoError) {
		for (UInt32 i = 0; i < list->mNumberBuffers; i++) {
			if (list->mBuffers[i].mNumberChannels > 0) {
				has = 1;
				break;
			}
		}
	}
	free(list);
	return has;
}

static OSStatus tapcastCreateTap(const AudioObjectID* procs, int procCount,
                                 const char* name, const char* sessionUUID,
                                 AudioObjectID* outTap) {
	NSMutableArray* objects = [NSMutableArray arrayWithCapacity:procCount];
	for (int i = 0; i < procCount; i++) {
		[objects addObject:@(procs[i])];
	}
	CATapDescription* desc = [[CATapDescription alloc] initStereoMixdownOfProcesses:objects];
	desc.UUID = [[NSUUID alloc] initWithUUIDString:[NSString stringWithUTF8String:sessionUUID]];
	desc.name = [NSString stringWithUTF8String:name];
	desc.privateTap = YES;
	return AudioHardwareCreateProcessTap(desc, outTap);
}

static OSStatus tapcastDeviceFormat(AudioObjectID device, int input, double* sampleRate,
                                    UInt32* channels, int* floatPCM) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyStreamFormat,
		input ? kAudioDevicePropertyScopeInput : kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain
	};
	AudioStreamBasicDescription asbd;
	UInt32 size = sizeof(asbd);
	OSStatus status = AudioObjectGetPropertyData(device, &addr, 0, NULL, &size, &asbd);
	if (status != kAudioHardwareNoError) {
		return status;
	}
	*sampleRate = asbd.mSampleRate;
	*channels = asbd.mChannelsPerFrame;
	*floatPCM = (asbd.mFormatID == kAudioFormatLinearPCM) &&
		((asbd.mFormatFlags & kAudioFormatFlagIsFloat) != 0);
	return kAudioHardwareNoError;
}

static OSStatus tapcastTapFormat(AudioObjectID tap, double* sampleRate,
                                 UInt32* channels, int* floatPCM) {
	AudioObjectPropertyAddress addr = {
		kAudioTapPropertyFormat,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain
	};
	AudioStreamBasicDescription asbd;
	UInt32 size = sizeof(asbd);
	OSStatus status = AudioObjectGetPropertyData(tap, &addr, 0, NULL, &size, &asbd);
	if (status != kAudioHardwareNoError) {
		return status;
	}
	*sampleRate = asbd.mSampleRate;
	*channels = asbd.mChannelsPerFrame;
	*floatPCM = (asbd.mFormatID == kAudioFormatLinearPCM) &&
		((asbd.mFormatFlags & kAudioFormatFlagIsFloat) != 0);
	return kAudioHardwareNoError;
}

static OSStatus tapcastCreateAggregate(const char* name, const char* uid,
                                       const char* mainSubUID, int isPrivate,
                                       const char** tapUUIDs, int tapCount,
                                       AudioObjectID* outDevice) {
	NSMutableDictionary* spec = [NSMutableDictionary dictionary];
	spec[@kAudioAggregateDeviceNameKey] = [NSString stringWithUTF8String:name];
	spec[@kAudioAggregateDeviceUIDKey] = [NSString stringWithUTF8String:uid];
	spec[@kAudioAggregateDeviceMainSubDeviceKey] = [NSString stringWithUTF8String:mainSubUID];
	spec[@kAudioAggregateDeviceIsPrivateKey] = @(isPrivate);

	NSMutableArray* subDevices = [NSMutableArray array];
	[subDevices addObject:@{@kAudioSubDeviceUIDKey: [NSString stringWithUTF8String:mainSubUID]}];
	spec[@kAudioAggregateDeviceSubDeviceListKey] = subDevices;

	NSMutableArray* taps = [NSMutableArray array];
	for (int i = 0; i < tapCount; i++) {
		[taps addObject:@{@kAudioSubTapUIDKey: [NSString stringWithUTF8String:tapUUIDs[i]]}];
	}
	spec[@kAudioAggregateDeviceTapListKey] = taps;

	return AudioHardwareCreateAggregateDevice((__bridge CFDictionaryRef)spec, outDevice);
}

static OSStatus tapcastProcessPID(AudioObjectID proc, pid_t* outPID) {
	AudioObjectPropertyAddress addr = {
		kAudioProcessPropertyPID,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain
	};
	UInt32 size = sizeof(pid_t);
	return AudioObjectGetPropertyData(proc, &addr, 0, NULL, &size, outPID);
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

const maxEnumObjects = 1024

// System is the real CoreAudio HAL. Requires macOS 14.2 or newer for
// process taps.
type System struct{}

// NewSystem returns the CoreAudio-backed HAL.
func NewSystem() (HAL, error) {
	return &System{}, nil
}

// ioprocRegistry maps tokens handed to the C trampoline back to Go
// callbacks. The real-time thread only ever reads it.
var (
	ioprocMu      sync.RWMutex
	ioprocNext    IOProcToken
	ioprocEntries = make(map[IOProcToken]*ioprocEntry)
)

type ioprocEntry struct {
	proc   IOProc
	procID C.AudioDeviceIOProcID
	device ObjectID
	format StreamFormat
}

//export tapcastDeliver
func tapcastDeliver(token C.uintptr_t, buffers *C.AudioBufferList) {
	ioprocMu.RLock()
	entry := ioprocEntries[IOProcToken(token)]
	ioprocMu.RUnlock()
	if entry == nil || buffers.mNumberBuffers == 0 {
		return
	}

	buf := buffers.mBuffers[0]
	if buf.mData == nil || buf.mDataByteSize == 0 {
		return
	}
	n := int(buf.mDataByteSize) / 4
	samples := unsafe.Slice((*float32)(buf.mData), n)

	entry.proc(Buffer{Samples: samples, Format: entry.format})
}

func statusErr(s C.OSStatus) error {
	if s == C.kAudioHardwareNoError {
		return nil
	}
	return Status(int32(s))
}

// ResolveProcessObject implements HAL.
func (s *System) ResolveProcessObject(pid int) (ObjectID, error) {
	var obj C.AudioObjectID
	st := C.tapcastTranslatePID(C.pid_t(pid), &obj)
	if st != C.kAudioHardwareNoError {
		return ObjectUnknown, nil
	}
	return ObjectID(obj), nil
}

// DefaultOutputDevice implements HAL.
func (s *System) DefaultOutputDevice() (ObjectID, error) {
	var obj C.AudioObjectID
	st := C.tapcastGetObjectID(C.kAudioObjectSystemObject,
		C.kAudioHardwarePropertyDefaultOutputDevice, &obj)
	return ObjectID(obj), statusErr(st)
}

// DefaultInputDevice implements HAL.
func (s *System) DefaultInputDevice() (ObjectID, error) {
	var obj C.AudioObjectID
	st := C.tapcastGetObjectID(C.kAudioObjectSystemObject,
		C.kAudioHardwarePropertyDefaultInputDevice, &obj)
	return ObjectID(obj), statusErr(st)
}

// DeviceUID implements HAL.
func (s *System) DeviceUID(device ObjectID) (string, error) {
	var buf [512]C.char
	st := C.tapcastCopyString(C.AudioObjectID(device),
		C.kAudioDevicePropertyDeviceUID, &buf[0], 512)
	if err := statusErr(st); err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

// DeviceByUID implements HAL.
func (s *System) DeviceByUID(uid string) (ObjectID, error) {
	cuid := C.CString(uid)
	defer C.free(unsafe.Pointer(cuid))
	var obj C.AudioObjectID
	st := C.tapcastTranslateUID(cuid, &obj)
	if err := statusErr(st); err != nil {
		return ObjectUnknown, err
	}
	if obj == 0 {
		return ObjectUnknown, StatusNotFound
	}
	return ObjectID(obj), nil
}

// CreateProcessTap implements HAL.
func (s *System) CreateProcessTap(desc TapDescriptor) (ObjectID, error) {
	procs := make([]C.AudioObjectID, len(desc.ProcessObjects))
	for i, p := range desc.ProcessObjects {
		procs[i] = C.AudioObjectID(p)
	}
	cname := C.CString(desc.Name)
	defer C.free(unsafe.Pointer(cname))
	cuuid := C.CString(desc.SessionUUID)
	defer C.free(unsafe.Pointer(cuuid))

	var tap C.AudioObjectID
	st := C.tapcastCreateTap(&procs[0], C.int(len(procs)), cname, cuuid, &tap)
	if err := statusErr(st); err != nil {
		return ObjectUnknown, err
	}
	return ObjectID(tap), nil
}

// TapStreamFormat implements HAL.
func (s *System) TapStreamFormat(tap ObjectID) (StreamFormat, error) {
	var (
		rate     C.double
		channels C.UInt32
		floatPCM C.int
	)
	st := C.tapcastTapFormat(C.AudioObjectID(tap), &rate, &channels, &floatPCM)
	if err := statusErr(st); err != nil {
		return StreamFormat{}, err
	}
	return StreamFormat{
		SampleRate: float64(rate),
		Channels:   uint32(channels),
		FloatPCM:   floatPCM != 0,
	}, nil
}

// DeviceStreamFormat implements HAL.
func (s *System) DeviceStreamFormat(device ObjectID, scope Scope) (StreamFormat, error) {
	input := C.int(0)
	if scope == ScopeInput {
		input = 1
	}
	var (
		rate     C.double
		channels C.UInt32
		floatPCM C.int
	)
	st := C.tapcastDeviceFormat(C.AudioObjectID(device), input, &rate, &channels, &floatPCM)
	if err := statusErr(st); err != nil {
		return StreamFormat{}, err
	}
	return StreamFormat{
		SampleRate: float64(rate),
		Channels:   uint32(channels),
		FloatPCM:   floatPCM != 0,
	}, nil
}

// CreateAggregateDevice implements HAL.
func (s *System) CreateAggregateDevice(desc AggregateDescriptor) (ObjectID, error) {
	cname := C.CString(desc.Name)
	defer C.free(unsafe.Pointer(cname))
	cuid := C.CString(desc.UID)
	defer C.free(unsafe.Pointer(cuid))
	cmain := C.CString(desc.MainSubDeviceUID)
	defer C.free(unsafe.Pointer(cmain))

	taps := make([]*C.char, len(desc.TapUUIDs))
	for i, u := range desc.TapUUIDs {
		taps[i] = C.CString(u)
		defer C.free(unsafe.Pointer(taps[i]))
	}
	var tapsPtr **C.char
	if len(taps) > 0 {
		tapsPtr = &taps[0]
	}

	private := C.int(0)
	if desc.Private {
		private = 1
	}

	var device C.AudioObjectID
	st := C.tapcastCreateAggregate(cname, cuid, cmain, private, tapsPtr, C.int(len(taps)), &device)
	if err := statusErr(st); err != nil {
		return ObjectUnknown, err
	}
	return ObjectID(device), nil
}

// InstallIOProc implements HAL.
func (s *System) InstallIOProc(device ObjectID, proc IOProc) (IOProcToken, error) {
	format := StreamFormat{FloatPCM: true}
	// The delivered format matches the tap format negotiated at session
	// start; the bridge fills in rate and channels from the session.

	ioprocMu.Lock()
	ioprocNext++
	token := ioprocNext
	entry := &ioprocEntry{proc: proc, device: device, format: format}
	ioprocEntries[token] = entry
	ioprocMu.Unlock()

	var procID C.AudioDeviceIOProcID
	st := C.tapcastCreateIOProc(C.AudioObjectID(device), C.uintptr_t(token), &procID)
	if err := statusErr(st); err != nil {
		ioprocMu.Lock()
		delete(ioprocEntries, token)
		ioprocMu.Unlock()
		return 0, err
	}

	ioprocMu.Lock()
	entry.procID = procID
	ioprocMu.Unlock()
	return token, nil
}

// Start implements HAL.
func (s *System) Start(device ObjectID, token IOProcToken) error {
	ioprocMu.RLock()
	entry := ioprocEntries[token]
	ioprocMu.RUnlock()
	if entry == nil {
		return StatusNotFound
	}
	return statusErr(C.AudioDeviceStart(C.AudioObjectID(device), entry.procID))
}

// Stop implements HAL.
func (s *System) Stop(device ObjectID, token IOProcToken) error {
	ioprocMu.RLock()
	entry := ioprocEntries[token]
	ioprocMu.RUnlock()
	if entry == nil {
		return StatusNotFound
	}
	return statusErr(C.AudioDeviceStop(C.AudioObjectID(device), entry.procID))
}

// RemoveIOProc implements HAL.
func (s *System) RemoveIOProc(device ObjectID, token IOProcToken) error {
	ioprocMu.Lock()
	entry := ioprocEntries[token]
	delete(ioprocEntries, token)
	ioprocMu.Unlock()
	if entry == nil {
		return StatusNotFound
	}
	return statusErr(C.AudioDeviceDestroyIOProcID(C.AudioObjectID(device), entry.procID))
}

// DestroyAggregateDevice implements HAL.
func (s *System) DestroyAggregateDevice(device ObjectID) error {
	return statusErr(C.AudioHardwareDestroyAggregateDevice(C.AudioObjectID(device)))
}

// DestroyProcessTap implements HAL.
func (s *System) DestroyProcessTap(tap ObjectID) error {
	return statusErr(C.AudioHardwareDestroyProcessTap(C.AudioObjectID(tap)))
}

func (s *System) listObjects(sel C.AudioObjectPropertySelector) ([]ObjectID, error) {
	out := make([]C.AudioObjectID, maxEnumObjects)
	var count C.int
	st := C.tapcastListObjects(sel, &out[0], C.int(len(out)), &count)
	if err := statusErr(st); err != nil {
		return nil, err
	}
	ids := make([]ObjectID, int(count))
	for i := range ids {
		ids[i] = ObjectID(out[i])
	}
	return ids, nil
}

// AllObjects implements HAL. Devices (including aggregates) and taps are
// both reachable from the system object's device list; process objects
// come from the process list.
func (s *System) AllObjects() ([]ObjectID, error) {
	devices, err := s.listObjects(C.kAudioHardwarePropertyDevices)
	if err != nil {
		return nil, err
	}
	taps, err := s.listObjects(C.kAudioHardwarePropertyTapList)
	if err != nil {
		// Tap list enumeration is unavailable before macOS 14.2.
		return devices, nil
	}
	return append(devices, taps...), nil
}

// Devices implements HAL.
func (s *System) Devices(scope Scope) ([]ObjectID, error) {
	all, err := s.listObjects(C.kAudioHardwarePropertyDevices)
	if err != nil {
		return nil, err
	}
	input := C.int(0)
	if scope == ScopeInput {
		input = 1
	}
	var ids []ObjectID
	for _, id := range all {
		if C.tapcastDeviceHasScope(C.AudioObjectID(id), input) != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Processes implements HAL.
func (s *System) Processes() ([]ProcessInfo, error) {
	objs, err := s.listObjects(C.kAudioHardwarePropertyProcessObjectList)
	if err != nil {
		return nil, err
	}
	infos := make([]ProcessInfo, 0, len(objs))
	for _, obj := range objs {
		var pid C.pid_t
		if C.tapcastProcessPID(C.AudioObjectID(obj), &pid) != C.kAudioHardwareNoError {
			continue
		}
		infos = append(infos, ProcessInfo{
			PID:    int(pid),
			Object: obj,
			Name:   s.ObjectName(obj),
		})
	}
	return infos, nil
}

// ObjectName implements HAL.
func (s *System) ObjectName(obj ObjectID) string {
	var buf [512]C.char
	if C.tapcastCopyString(C.AudioObjectID(obj), C.kAudioObjectPropertyName, &buf[0], 512) != C.kAudioHardwareNoError {
		return ""
	}
	return C.GoString(&buf[0])
}

// ObjectUID implements HAL.
func (s *System) ObjectUID(obj ObjectID) string {
	var buf [512]C.char
	if C.tapcastCopyString(C.AudioObjectID(obj), C.kAudioDevicePropertyDeviceUID, &buf[0], 512) != C.kAudioHardwareNoError {
		return ""
	}
	return C.GoString(&buf[0])
}

var _ HAL = (*System)(nil)
