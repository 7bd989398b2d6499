// Package checklist tracks which documents a case still needs.
package checklist

import (
	"time"

	"intake-backend/internal/intake"
)

// Event is something a stage observed about a requirement's documents.
type Event string

const (
	// RawLinked means a new raw file was attached to the requirement.
	RawLinked Event = "raw_linked"
	// DigitalReady means an attached document has extracted data.
	DigitalReady Event = "digital_ready"
	// Verified means staff completed review of an attached document.
	Verified Event = "verified"
)

func (e Event) target() intake.RequirementStatus {
	switch e {
	case RawLinked:
		return intake.ReqHasRaw
	case DigitalReady:
		return intake.ReqHasDigital
	case Verified:
		return intake.ReqVerified
	}
	return ""
}

// Advance applies event to req. Status only moves forward: an event whose target
// is at or below the current status leaves it unchanged. RawLinked always counts
// the file. The bool reports whether anything changed.
func Advance(req intake.ChecklistRequirement, event Event, now time.Time) (intake.ChecklistRequirement, bool) {
	target := event.target()
	if target == "" {
		return req, false
	}
	changed := false
	if event == RawLinked {
		req.ReceivedCount++
		changed = true
	}
	if target.Rank() > req.Status.Rank() {
		req.Status = target
		changed = true
	}
	if changed {
		req.UpdatedAt = now
	}
	return req, changed
}

// Open reports whether req can still receive documents.
func Open(req intake.ChecklistRequirement) bool {
	return req.Status != intake.ReqVerified
}
