package first

import (
	"fmt"
	"strings"
	"time"

	"firstsync/internal/hubspot"
	logx "firstsync/pkg/logx"
)

// Custom property names stamped on marketing events.
const (
	PropEventCode       = "event_code"
	PropEventSeasonYear = "event_season_year"
	PropEventLocation   = "event_location"
)

// MarketingEvent converts one event document into an upsert payload.
// Organizer is the account name stamped on the event (updates later
// overwrite it with the organizer already stored in HubSpot); region is the
// state/region line used in the location (e.g. "Alabama").
//
// Events missing type, season, code, name or either date are rejected.
func (e Event) MarketingEvent(organizer, region string) (hubspot.MarketingEventInput, error) {
	var in hubspot.MarketingEventInput

	eventType := e.Type.trimmed()
	season := e.Season.trimmed()
	code := e.Code.trimmed()
	name := e.Name.trimmed()
	if eventType == "" || season == "" || code == "" {
		return in, fmt.Errorf("event incomplete (type=%q season=%q code=%q)", eventType, season, code)
	}
	if name == "" {
		return in, fmt.Errorf("event %s%s%s has no name", eventType, season, code)
	}

	start, err := parseEventTime(e.DateStart.trimmed())
	if err != nil {
		return in, fmt.Errorf("event %s: start date: %w", e.Identifier(), err)
	}
	end, err := parseEventTime(e.DateEnd.trimmed())
	if err != nil {
		return in, fmt.Errorf("event %s: end date: %w", e.Identifier(), err)
	}

	id := e.Identifier()
	in = hubspot.MarketingEventInput{
		EventOrganizer:    organizer,
		ExternalAccountID: id,
		ExternalEventID:   id,
		EventName:         name,
		EventType:         eventType,
		StartDateTime:     start.UnixMilli(),
		EndDateTime:       end.UnixMilli(),
		EventURL:          e.VolunteerURL(),
		CustomProperties: []hubspot.CustomProperty{
			{Name: PropEventCode, Value: code},
			{Name: PropEventSeasonYear, Value: season},
			{Name: PropEventLocation, Value: e.Location(region)},
		},
	}
	return in, nil
}

// BuildMarketingEvents transforms documents in bulk, logging and skipping
// incomplete ones (the index routinely contains half-filled drafts).
func BuildMarketingEvents(events []Event, organizer, region string, log logx.Logger) []hubspot.MarketingEventInput {
	if log.IsZero() {
		log = logx.Nop()
	}
	out := make([]hubspot.MarketingEventInput, 0, len(events))
	for _, e := range events {
		in, err := e.MarketingEvent(organizer, region)
		if err != nil {
			log.Debug("event skipped", logx.Err(err))
			continue
		}
		out = append(out, in)
	}
	return out
}

// VolunteerURL prefers the express signup link over the legacy dashboard
// deeplink.
func (e Event) VolunteerURL() string {
	if v := e.ExpressVolunteerURL.trimmed(); v != "" {
		return v
	}
	return e.LegacyVolunteerURL.trimmed()
}

// Location assembles a postal-style address block:
//
//	venue
//	address1
//	address2
//	City, Region ZIP
//
// Single-character fragments are treated as junk and dropped (the index
// contains placeholder values like "-").
func (e Event) Location(region string) string {
	var b strings.Builder

	if v := e.Venue.trimmed(); len(v) > 1 {
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := e.Address1.trimmed(); len(v) > 1 {
		b.WriteString(v)
		b.WriteString("\n")
	}
	if v := e.Address2.trimmed(); len(v) > 0 {
		b.WriteString(v)
		b.WriteString("\n")
	}

	last := ""
	if v := e.City.trimmed(); len(v) > 1 {
		last = v
	}
	if r := strings.TrimSpace(region); r != "" {
		if last != "" {
			last += ", "
		}
		last += r
	}
	if v := e.PostalCode.trimmed(); len(v) > 1 {
		if last != "" {
			last += " "
		}
		last += v
	}

	out := b.String()
	if last != "" {
		out += last
	}
	return strings.TrimRight(out, "\n")
}

// parseEventTime accepts the timestamp shapes observed in the index:
// RFC3339 with offset, naive date-time, and bare date. Naive values are
// interpreted in local time.
func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
