package ingestion

import (
	"encoding/json"
	"errors"
	"time"
)

// Stream identifies which device/event stream a record arrived on.
type Stream string

const (
	StreamTelemetry   Stream = "telemetry"
	StreamRTLS        Stream = "rtls"
	StreamMaintenance Stream = "maintenance"
	StreamError       Stream = "error"
)

// HealthStatus is the five-band asset condition indicator.
type HealthStatus string

const (
	HealthCritical  HealthStatus = "critical"
	HealthPoor      HealthStatus = "poor"
	HealthFair      HealthStatus = "fair"
	HealthGood      HealthStatus = "good"
	HealthExcellent HealthStatus = "excellent"
)

// Severity levels accepted on telemetry and error events.
const (
	SeverityDebug    = "debug"
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// PMCompletedEventType marks a finished preventive-maintenance work order.
const PMCompletedEventType = "pm_completed"

// TelemetryEvent is a single metric sample from a device or operational system.
type TelemetryEvent struct {
	Timestamp     string          `json:"timestamp"`
	FacilityID    string          `json:"facilityId"`
	ServiceName   string          `json:"serviceName"`
	Environment   string          `json:"environment"`
	MetricName    string          `json:"metricName,omitempty"`
	Value         *float64        `json:"value,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	Category      string          `json:"category,omitempty"`
	EventSource   string          `json:"eventSource,omitempty"`
	Severity      string          `json:"severity,omitempty"`
	AssetID       string          `json:"assetId,omitempty"`
	AssetCategory string          `json:"assetCategory,omitempty"`
	AssetType     string          `json:"assetType,omitempty"`
	Department    string          `json:"department,omitempty"`
	RiskClass     string          `json:"riskClass,omitempty"`
	MLLabels      *MLLabels       `json:"mlLabels,omitempty"`
	LabelMetadata *LabelMetadata  `json:"labelMetadata,omitempty"`
	TraceID       string          `json:"traceId,omitempty"`
	RawPayload    json.RawMessage `json:"rawPayload,omitempty"`
}

// MLLabels is the machine-learning annotation attached to a telemetry event.
type MLLabels struct {
	HealthScore         *float64 `json:"healthScore,omitempty"`
	HealthStatus        string   `json:"healthStatus,omitempty"`
	AnomalyDetected     bool     `json:"anomalyDetected,omitempty"`
	FailureProbability  *float64 `json:"failureProbability,omitempty"`
	PredictedFailureType string  `json:"predictedFailureType,omitempty"`
	TimeToFailureHours  *float64 `json:"timeToFailureHours,omitempty"`
}

// LabelMetadata describes where an MLLabels annotation came from.
type LabelMetadata struct {
	LabelSource     string   `json:"labelSource,omitempty"`
	LabelConfidence *float64 `json:"labelConfidence,omitempty"`
	ModelVersion    string   `json:"modelVersion,omitempty"`
}

// RTLSEvent is a real-time-location ping for one asset.
type RTLSEvent struct {
	Timestamp  string          `json:"timestamp"`
	AssetID    string          `json:"assetId"`
	FacilityID string          `json:"facilityId"`
	SourceType string          `json:"sourceType"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Z          *float64        `json:"z,omitempty"`
	AccuracyM  *float64        `json:"accuracyM,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	LocationID string          `json:"locationId,omitempty"`
	RawPayload json.RawMessage `json:"rawPayload,omitempty"`
}

// MaintenanceEvent records maintenance work performed on an asset.
type MaintenanceEvent struct {
	Timestamp       string          `json:"timestamp"`
	AssetID         string          `json:"assetId"`
	FacilityID      string          `json:"facilityId"`
	WorkOrderID     string          `json:"workOrderId,omitempty"`
	EventType       string          `json:"eventType"`
	MaintenanceType string          `json:"maintenanceType,omitempty"`
	Failure         bool            `json:"failure,omitempty"`
	FailureType     string          `json:"failureType,omitempty"`
	FailureCode     string          `json:"failureCode,omitempty"`
	RootCause       string          `json:"rootCause,omitempty"`
	PartsReplaced   []string        `json:"partsReplaced,omitempty"`
	LaborHours      *float64        `json:"laborHours,omitempty"`
	DowntimeHours   *float64        `json:"downtimeHours,omitempty"`
	Cost            *float64        `json:"cost,omitempty"`
	TechnicianID    string          `json:"technicianId,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
}

// ErrorEvent records a device-reported fault.
type ErrorEvent struct {
	Timestamp            string             `json:"timestamp"`
	AssetID              string             `json:"assetId"`
	FacilityID           string             `json:"facilityId"`
	ErrorCode            string             `json:"errorCode"`
	Message              string             `json:"message,omitempty"`
	Category             string             `json:"category,omitempty"`
	Severity             string             `json:"severity,omitempty"`
	Component            string             `json:"component,omitempty"`
	Operation            string             `json:"operation,omitempty"`
	SensorReadings       map[string]float64 `json:"sensorReadings,omitempty"`
	AutoRecovered        bool               `json:"autoRecovered,omitempty"`
	RequiresIntervention bool               `json:"requiresIntervention,omitempty"`
	RawPayload           json.RawMessage    `json:"rawPayload,omitempty"`
}

// ErrInvalidTimestamp is returned when an event timestamp cannot be parsed.
var ErrInvalidTimestamp = errors.New("ingestion: invalid timestamp")

// ParseEventTime parses an event timestamp as RFC3339 (with optional nanoseconds).
func ParseEventTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return ts.UTC(), nil
}
