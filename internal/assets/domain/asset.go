package assets

import (
	"errors"
	"time"

	ingestion "medasset-cloud/internal/ingestion/domain"
)

// AssetStatus is the operational status slice of the asset record this core
// is allowed to mutate. Full asset lifecycle ownership lives outside this core.
type AssetStatus string

const (
	StatusAvailable     AssetStatus = "available"
	StatusInUse         AssetStatus = "in_use"
	StatusInMaintenance AssetStatus = "in_maintenance"
	StatusQuarantined   AssetStatus = "quarantined"
	StatusRetired       AssetStatus = "retired"
)

// ErrNotFound is returned when an asset has no derived-state row yet.
var ErrNotFound = errors.New("assets: not found")

// State is the narrow derived-state slice mutated by validated events.
type State struct {
	AssetID           string      `json:"assetId"`
	CurrentLocationID string      `json:"currentLocationId,omitempty"`
	LastSeenAt        *time.Time  `json:"lastSeenAt,omitempty"`
	LastPMDate        *time.Time  `json:"lastPmDate,omitempty"`
	NextPMDueDate     *time.Time  `json:"nextPmDueDate,omitempty"`
	Status            AssetStatus `json:"status,omitempty"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// HealthSample is one recorded health observation for an asset. Samples are
// append-only; the newest one is the asset's current health indicator.
type HealthSample struct {
	AssetID      string                 `json:"assetId"`
	Score        float64                `json:"score"`
	Status       ingestion.HealthStatus `json:"status"`
	ModelVersion string                 `json:"modelVersion,omitempty"`
	ObservedAt   time.Time              `json:"observedAt"`
}

// TransitionForCondition maps an asset's current health condition to the
// status it must transition to when a critical, intervention-requiring error
// arrives. The second return is false when no transition applies; that is an
// expected outcome, not an error.
func TransitionForCondition(condition ingestion.HealthStatus) (AssetStatus, bool) {
	switch condition {
	case ingestion.HealthCritical:
		return StatusQuarantined, true
	case ingestion.HealthPoor, ingestion.HealthFair:
		return StatusInMaintenance, true
	case ingestion.HealthGood, ingestion.HealthExcellent:
		return "", false
	default:
		return "", false
	}
}
