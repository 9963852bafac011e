package events

import "time"

// EventIngested is raised after a raw event and its derived updates commit.
type EventIngested struct {
	EventID    string    `json:"event_id"`
	Stream     string    `json:"stream"`
	AssetID    string    `json:"asset_id"`
	FacilityID string    `json:"facility_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
