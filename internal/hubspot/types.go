package hubspot

import (
	"fmt"
	"strings"
)

// CustomProperty is a name/value pair attached to a marketing event.
type CustomProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CustomPropertyValue returns the value for name. Following the existing
// sync behavior, zero or multiple matches both count as not found.
func CustomPropertyValue(props []CustomProperty, name string) (string, bool) {
	found := false
	value := ""
	for _, p := range props {
		if p.Name != name {
			continue
		}
		if found {
			return "", false
		}
		found = true
		value = p.Value
	}
	return value, found
}

// MarketingEvent is one event as returned by the list API.
type MarketingEvent struct {
	ObjectID         string           `json:"objectId"`
	ExternalEventID  string           `json:"externalEventId"`
	EventOrganizer   string           `json:"eventOrganizer"`
	EventName        string           `json:"eventName"`
	EventType        string           `json:"eventType"`
	CustomProperties []CustomProperty `json:"customProperties"`
}

// MarketingEventInput is one upsert payload.
type MarketingEventInput struct {
	ObjectID          string           `json:"objectId,omitempty"`
	EventOrganizer    string           `json:"eventOrganizer"`
	ExternalAccountID string           `json:"externalAccountId"`
	ExternalEventID   string           `json:"externalEventId"`
	EventName         string           `json:"eventName"`
	EventType         string           `json:"eventType"`
	StartDateTime     int64            `json:"startDateTime"`
	EndDateTime       int64            `json:"endDateTime"`
	EventURL          string           `json:"eventUrl,omitempty"`
	CustomProperties  []CustomProperty `json:"customProperties,omitempty"`
}

// APIError is a non-2xx response from the HubSpot API.
type APIError struct {
	StatusCode    int
	CorrelationID string
	Body          string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("hubspot: status %d", e.StatusCode)
	if e.CorrelationID != "" {
		msg += " (correlation " + e.CorrelationID + ")"
	}
	if b := strings.TrimSpace(e.Body); b != "" {
		msg += ": " + b
	}
	return msg
}

// IsRateLimited reports whether the API asked us to back off.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }
