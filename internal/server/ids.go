package server

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var eventSeq atomic.Uint64

// newEventID produces an "evt_<unix>_<6hex>" ID (spec.md §7 Testable
// Property 2): the unix second paired with a per-process counter rendered
// as 6 hex digits, so two events appended within the same second still
// compare unique.
func newEventID(ts float64) string {
	n := eventSeq.Add(1)
	return fmt.Sprintf("evt_%d_%06x", int64(ts), n&0xFFFFFF)
}

// newPermissionRequestID generates the ID handed back to the hook client
// and used as the long-poll rendezvous key.
func newPermissionRequestID() string {
	return uuid.NewString()
}
