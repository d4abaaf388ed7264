//go:build !darwin

package coreaudio

import "errors"

// NewSystem returns an error on non-macOS platforms. The Mock remains
// available everywhere for CI.
func NewSystem() (HAL, error) {
	return nil, errors.New("coreaudio: process taps are only available on macOS")
}
