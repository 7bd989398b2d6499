package checklist

import (
	"testing"
	"time"

	"intake-backend/internal/intake"
)

func TestAdvanceIsMonotonic(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	statuses := []intake.RequirementStatus{intake.ReqMissing, intake.ReqHasRaw, intake.ReqHasDigital, intake.ReqVerified}
	events := []Event{RawLinked, DigitalReady, Verified}

	for _, start := range statuses {
		for _, ev := range events {
			req := intake.ChecklistRequirement{ID: "r", Status: start}
			got, _ := Advance(req, ev, now)
			if got.Status.Rank() < start.Rank() {
				t.Fatalf("%s + %s regressed to %s", start, ev, got.Status)
			}
		}
	}
}

func TestAdvanceTransitions(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name        string
		start       intake.RequirementStatus
		event       Event
		wantStatus  intake.RequirementStatus
		wantCount   int
		wantChanged bool
	}{
		{"raw on missing", intake.ReqMissing, RawLinked, intake.ReqHasRaw, 1, true},
		{"raw on has_digital counts only", intake.ReqHasDigital, RawLinked, intake.ReqHasDigital, 1, true},
		{"digital skips ahead", intake.ReqMissing, DigitalReady, intake.ReqHasDigital, 0, true},
		{"digital on verified", intake.ReqVerified, DigitalReady, intake.ReqVerified, 0, false},
		{"verified", intake.ReqHasDigital, Verified, intake.ReqVerified, 0, true},
		{"unknown event", intake.ReqMissing, Event("nope"), intake.ReqMissing, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := Advance(intake.ChecklistRequirement{Status: tc.start}, tc.event, now)
			if got.Status != tc.wantStatus || got.ReceivedCount != tc.wantCount || changed != tc.wantChanged {
				t.Fatalf("got status=%s count=%d changed=%t", got.Status, got.ReceivedCount, changed)
			}
			if changed && !got.UpdatedAt.Equal(now) {
				t.Fatalf("updatedAt not stamped")
			}
		})
	}
}
