package coreaudio

import "fmt"

// Status is a native OSStatus-style result code. Zero is success.
type Status int32

// Native status codes surfaced by the HAL.
const (
	StatusOK               Status = 0
	StatusUnknown          Status = 1
	StatusNotFound         Status = 560947818 // '!obj'
	StatusPermission       Status = 561017960 // '!hog'
	StatusUnsupported      Status = 1970171760
	StatusHardwareError    Status = 1937010544
	StatusIllegalOperation Status = 1852797029 // 'nope'
)

// Error implements the error interface. StatusOK should never be
// returned as an error.
func (s Status) Error() string {
	return fmt.Sprintf("coreaudio: status %d", int32(s))
}

// OK reports whether the status is success.
func (s Status) OK() bool {
	return s == StatusOK
}
