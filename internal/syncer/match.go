package syncer

import (
	"strconv"

	"firstsync/internal/first"
	"firstsync/internal/hubspot"
	logx "firstsync/pkg/logx"
)

// splitPlan partitions candidate payloads into updates and creates.
//
// Updates are candidates whose external id matches a HubSpot event inside
// the season window; they inherit the existing event's objectId and
// organizer so the upsert targets the same record. Everything else is a
// create.
//
// The season window accounts for program naming: FRC labels its season by
// the kickoff year, the other programs by the previous year, so an FRC
// event belongs to the window when its stored season equals the current
// season and a non-FRC event when it equals season-1.
func splitPlan(candidates []hubspot.MarketingEventInput, existing []hubspot.MarketingEvent,
	season int, log logx.Logger) (updates, creates []hubspot.MarketingEventInput) {

	byID := make(map[string][]int, len(candidates))
	for i, c := range candidates {
		byID[c.ExternalEventID] = append(byID[c.ExternalEventID], i)
	}

	claimed := make(map[int]bool, len(candidates))

	for _, ex := range existing {
		if !inSeasonWindow(ex, season) {
			continue
		}
		idxs, ok := byID[ex.ExternalEventID]
		if !ok {
			continue
		}
		if len(idxs) > 1 {
			log.Warn("multiple fetched events share an external id; skipping",
				logx.String("event", ex.ExternalEventID),
				logx.Int("matches", len(idxs)))
			for _, i := range idxs {
				claimed[i] = true
			}
			continue
		}

		i := idxs[0]
		if claimed[i] {
			continue
		}
		claimed[i] = true

		upd := candidates[i]
		upd.ObjectID = ex.ObjectID
		upd.EventOrganizer = ex.EventOrganizer
		updates = append(updates, upd)
	}

	for i, c := range candidates {
		if !claimed[i] {
			creates = append(creates, c)
		}
	}
	return updates, creates
}

func inSeasonWindow(ex hubspot.MarketingEvent, season int) bool {
	year, ok := hubspot.CustomPropertyValue(ex.CustomProperties, first.PropEventSeasonYear)
	if !ok {
		return false
	}
	if ex.EventType == first.ProgramFRC {
		return year == strconv.Itoa(season)
	}
	return year == strconv.Itoa(season-1)
}
