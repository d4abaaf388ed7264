package capture

import (
	"log/slog"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

// ReclaimOrphans scans every native audio object and destroys the ones
// carrying the reserved prefix in their name or UID. A prior crash
// leaves its private aggregate and tap registered with the OS; without
// this sweep they would accumulate without bound.
//
// A leftover handle's creation kind is not reliably distinguishable
// from the outside, so destruction is attempted as an aggregate first
// and as a tap second, accepting whichever succeeds. Failures are
// logged, never returned: reclamation is best-effort by design.
func ReclaimOrphans(h coreaudio.HAL, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	objs, err := h.AllObjects()
	if err != nil {
		logger.Warn("orphan scan failed", "error", err)
		return 0
	}

	reclaimed := 0
	for _, obj := range objs {
		name := h.ObjectName(obj)
		uid := h.ObjectUID(obj)
		if !HasReservedPrefix(name) && !HasReservedPrefix(uid) {
			continue
		}

		if err := h.DestroyAggregateDevice(obj); err == nil {
			logger.Info("reclaimed orphaned aggregate device", "name", name, "uid", uid)
			reclaimed++
			continue
		}
		if err := h.DestroyProcessTap(obj); err == nil {
			logger.Info("reclaimed orphaned process tap", "name", name, "uid", uid)
			reclaimed++
			continue
		}
		logger.Warn("could not reclaim orphaned object", "name", name, "uid", uid)
	}
	return reclaimed
}
