package capture

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

// ReservedPrefix tags every native object this system creates. The
// orphan reclaimer matches on it, so it must stay bit-exact across
// versions for cross-version reclamation to work.
const ReservedPrefix = "TapcastAudio"

// reservedName returns the aggregate device name for a target process.
func reservedName(pid int) string {
	return fmt.Sprintf("%s-%d", ReservedPrefix, pid)
}

// HasReservedPrefix reports whether a name or UID belongs to this
// system's naming convention.
func HasReservedPrefix(s string) bool {
	return s != "" && strings.HasPrefix(s, ReservedPrefix)
}

// newTapDescriptor builds the tap specification for one process object
// with a fresh session UUID.
func newTapDescriptor(pid int, proc coreaudio.ObjectID) coreaudio.TapDescriptor {
	return coreaudio.TapDescriptor{
		Name:           fmt.Sprintf("%s-tap-%d", ReservedPrefix, pid),
		ProcessObjects: []coreaudio.ObjectID{proc},
		SessionUUID:    uuid.NewString(),
	}
}

// newAggregateDescriptor builds the private aggregate device
// specification mixing the tap into the chosen physical output device.
func newAggregateDescriptor(pid int, outputUID, tapSessionUUID string) coreaudio.AggregateDescriptor {
	return coreaudio.AggregateDescriptor{
		Name:             reservedName(pid),
		UID:              fmt.Sprintf("%s-%s", ReservedPrefix, uuid.NewString()),
		MainSubDeviceUID: outputUID,
		Private:          true,
		TapUUIDs:         []string{tapSessionUUID},
	}
}
