package syncer

import (
	"testing"

	"firstsync/internal/first"
	"firstsync/internal/hubspot"
	logx "firstsync/pkg/logx"
)

func existingEvent(objectID, externalID, eventType, seasonYear string) hubspot.MarketingEvent {
	return hubspot.MarketingEvent{
		ObjectID:        objectID,
		ExternalEventID: externalID,
		EventType:       eventType,
		EventOrganizer:  "stored org",
		CustomProperties: []hubspot.CustomProperty{
			{Name: first.PropEventSeasonYear, Value: seasonYear},
		},
	}
}

func TestSplitPlan(t *testing.T) {
	candidates := []hubspot.MarketingEventInput{
		{ExternalEventID: "FRC2026ALHU", EventOrganizer: "cfg org"},
		{ExternalEventID: "FTC2025ALQ1", EventOrganizer: "cfg org"},
		{ExternalEventID: "FRC2026NEW", EventOrganizer: "cfg org"},
	}
	existing := []hubspot.MarketingEvent{
		existingEvent("obj-frc", "FRC2026ALHU", "FRC", "2026"),
		existingEvent("obj-ftc", "FTC2025ALQ1", "FTC", "2025"),
		existingEvent("obj-stale", "FRC2026NEW", "FRC", "2024"), // outside window
	}

	updates, creates := splitPlan(candidates, existing, 2026, logx.Nop())

	if len(updates) != 2 || len(creates) != 1 {
		t.Fatalf("updates=%d creates=%d", len(updates), len(creates))
	}
	for _, u := range updates {
		if u.ObjectID == "" || u.EventOrganizer != "stored org" {
			t.Fatalf("update payload not inherited: %+v", u)
		}
	}
	if creates[0].ExternalEventID != "FRC2026NEW" {
		t.Fatalf("create = %+v", creates[0])
	}
}

func TestSplitPlanDuplicateCandidates(t *testing.T) {
	candidates := []hubspot.MarketingEventInput{
		{ExternalEventID: "FRC2026DUP"},
		{ExternalEventID: "FRC2026DUP"},
	}
	existing := []hubspot.MarketingEvent{
		existingEvent("obj-1", "FRC2026DUP", "FRC", "2026"),
	}

	updates, creates := splitPlan(candidates, existing, 2026, logx.Nop())
	if len(updates) != 0 || len(creates) != 0 {
		t.Fatalf("ambiguous duplicates must be dropped; updates=%d creates=%d", len(updates), len(creates))
	}
}

func TestInSeasonWindow(t *testing.T) {
	cases := []struct {
		name string
		ex   hubspot.MarketingEvent
		want bool
	}{
		{"frc current", existingEvent("o", "x", "FRC", "2026"), true},
		{"frc prior", existingEvent("o", "x", "FRC", "2025"), false},
		{"ftc prior", existingEvent("o", "x", "FTC", "2025"), true},
		{"ftc current", existingEvent("o", "x", "FTC", "2026"), false},
		{"no season prop", hubspot.MarketingEvent{EventType: "FRC"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inSeasonWindow(tc.ex, 2026); got != tc.want {
				t.Fatalf("inSeasonWindow = %v, want %v", got, tc.want)
			}
		})
	}
}
