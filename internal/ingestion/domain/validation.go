package ingestion

import (
	"fmt"
	"math"
	"strings"
)

// Validation error codes.
const (
	CodeRequired         = "required"
	CodeInvalidFormat    = "invalid_format"
	CodeInvalidDomain    = "invalid_domain"
	CodeInvalidEnum      = "invalid_enum"
	CodeOutOfRange       = "out_of_range"
	CodeNotFinite        = "not_finite"
	CodeInvalidTimestamp = "invalid_timestamp"
	CodeInconsistent     = "inconsistent_labels"
)

// FieldError is a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationResult carries blocking errors and non-blocking warnings for one event.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// BatchValidationSummary aggregates validation outcomes over a list of events.
type BatchValidationSummary struct {
	Total        int `json:"total"`
	Valid        int `json:"valid"`
	Invalid      int `json:"invalid"`
	ErrorCount   int `json:"errorCount"`
	WarningCount int `json:"warningCount"`
}

// Metric names are dotted paths; the first segment must be a known domain.
const minMetricNameSegments = 4

var metricDomains = map[string]struct{}{
	"asset":       {},
	"rtls":        {},
	"maintenance": {},
	"compliance":  {},
	"user":        {},
	"system":      {},
	"ml":          {},
}

var severityValues = map[string]struct{}{
	SeverityDebug:    {},
	SeverityInfo:     {},
	SeverityWarning:  {},
	SeverityError:    {},
	SeverityCritical: {},
}

var healthStatusValues = map[string]struct{}{
	string(HealthCritical):  {},
	string(HealthPoor):      {},
	string(HealthFair):      {},
	string(HealthGood):      {},
	string(HealthExcellent): {},
}

var labelSourceValues = map[string]struct{}{
	"verified":  {},
	"automated": {},
	"inferred":  {},
	"estimated": {},
	"synthetic": {},
}

var rtlsSourceValues = map[string]struct{}{
	"rfid":   {},
	"ble":    {},
	"wifi":   {},
	"gps":    {},
	"manual": {},
	"scan":   {},
}

var eventCategoryValues = map[string]struct{}{
	"measurement": {},
	"status":      {},
	"alert":       {},
	"anomaly":     {},
	"prediction":  {},
	"heartbeat":   {},
}

// EU MDR device classes.
var riskClassValues = map[string]struct{}{
	"I":   {},
	"IIa": {},
	"IIb": {},
	"III": {},
}

// ValidateMetricName checks segment count and the leading domain segment.
func ValidateMetricName(name string) *FieldError {
	segments := strings.Split(name, ".")
	if len(segments) < minMetricNameSegments {
		return &FieldError{
			Field:   "metricName",
			Code:    CodeInvalidFormat,
			Message: fmt.Sprintf("expected at least %d dot-separated segments, got %d", minMetricNameSegments, len(segments)),
		}
	}
	if _, ok := metricDomains[segments[0]]; !ok {
		return &FieldError{
			Field:   "metricName",
			Code:    CodeInvalidDomain,
			Message: fmt.Sprintf("unknown metric domain %q", segments[0]),
		}
	}
	return nil
}

// validateEnum accepts absent values; all enum-checked fields are optional.
func validateEnum(value string, allowed map[string]struct{}, field string) *FieldError {
	if value == "" {
		return nil
	}
	if _, ok := allowed[value]; !ok {
		return &FieldError{
			Field:   field,
			Code:    CodeInvalidEnum,
			Message: fmt.Sprintf("value %q is not allowed", value),
		}
	}
	return nil
}

// validateRange accepts nil; bounds are inclusive.
func validateRange(value *float64, min, max float64, field string) *FieldError {
	if value == nil {
		return nil
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		return &FieldError{Field: field, Code: CodeNotFinite, Message: "value is not finite"}
	}
	if *value < min || *value > max {
		return &FieldError{
			Field:   field,
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("value %g outside [%g, %g]", *value, min, max),
		}
	}
	return nil
}

// ValidateMLLabels checks label ranges, enums, and score/status consistency.
// A mismatched score/status pair is an error, not a warning. Metadata is
// checked even when the labels themselves are absent.
func ValidateMLLabels(labels *MLLabels, meta *LabelMetadata) []FieldError {
	var errs []FieldError
	if meta != nil {
		if fe := validateRange(meta.LabelConfidence, 0, 1, "labelMetadata.labelConfidence"); fe != nil {
			errs = append(errs, *fe)
		}
		if fe := validateEnum(meta.LabelSource, labelSourceValues, "labelMetadata.labelSource"); fe != nil {
			errs = append(errs, *fe)
		}
	}
	if labels == nil {
		return errs
	}
	if fe := validateRange(labels.HealthScore, 0, 100, "mlLabels.healthScore"); fe != nil {
		errs = append(errs, *fe)
	}
	if fe := validateRange(labels.FailureProbability, 0, 1, "mlLabels.failureProbability"); fe != nil {
		errs = append(errs, *fe)
	}
	if fe := validateEnum(labels.HealthStatus, healthStatusValues, "mlLabels.healthStatus"); fe != nil {
		errs = append(errs, *fe)
	}
	if labels.HealthScore != nil && labels.HealthStatus != "" {
		score := *labels.HealthScore
		if score >= 0 && score <= 100 {
			implied := HealthScoreToStatus(score)
			if _, known := healthStatusValues[labels.HealthStatus]; known && HealthStatus(labels.HealthStatus) != implied {
				errs = append(errs, FieldError{
					Field:   "mlLabels.healthStatus",
					Code:    CodeInconsistent,
					Message: fmt.Sprintf("status %q does not match score %g (implies %q)", labels.HealthStatus, score, implied),
				})
			}
		}
	}
	return errs
}

// ValidateTelemetryEvent applies the full labeling standard to one candidate event.
// Errors block persistence; warnings never do. Producers are expected to send
// partially-labeled data during bring-up, so missing-but-recommended fields warn.
func ValidateTelemetryEvent(ev TelemetryEvent) ValidationResult {
	var result ValidationResult

	validateTimestamp(&result, ev.Timestamp)
	requireFields(&result,
		requiredField{"facilityId", ev.FacilityID},
		requiredField{"serviceName", ev.ServiceName},
		requiredField{"environment", ev.Environment},
	)

	if ev.MetricName == "" {
		result.Warnings = append(result.Warnings, "metricName missing; event will not be queryable by metric path")
	} else if fe := ValidateMetricName(ev.MetricName); fe != nil {
		result.Errors = append(result.Errors, *fe)
	}

	if ev.Value != nil && (math.IsNaN(*ev.Value) || math.IsInf(*ev.Value, 0)) {
		result.Errors = append(result.Errors, FieldError{
			Field: "value", Code: CodeNotFinite, Message: "metric value must be a finite number",
		})
	}

	for _, fe := range []*FieldError{
		validateEnum(ev.Severity, severityValues, "severity"),
		validateEnum(ev.Category, eventCategoryValues, "category"),
		validateEnum(ev.RiskClass, riskClassValues, "riskClass"),
	} {
		if fe != nil {
			result.Errors = append(result.Errors, *fe)
		}
	}

	linkage := []string{ev.AssetID, ev.AssetCategory, ev.AssetType}
	present := 0
	for _, v := range linkage {
		if v != "" {
			present++
		}
	}
	if present > 0 && present < len(linkage) {
		result.Warnings = append(result.Warnings, "partial asset linkage; assetId, assetCategory and assetType should be sent together")
	}

	result.Errors = append(result.Errors, ValidateMLLabels(ev.MLLabels, ev.LabelMetadata)...)
	if ev.MLLabels != nil && ev.LabelMetadata == nil {
		result.Warnings = append(result.Warnings, "mlLabels present without labelMetadata; label provenance is unknown")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

type requiredField struct {
	name  string
	value string
}

func requireFields(result *ValidationResult, fields ...requiredField) {
	for _, f := range fields {
		if f.value == "" {
			result.Errors = append(result.Errors, FieldError{
				Field: f.name, Code: CodeRequired, Message: f.name + " is required",
			})
		}
	}
}

func validateTimestamp(result *ValidationResult, value string) {
	if _, err := ParseEventTime(value); err != nil {
		result.Errors = append(result.Errors, FieldError{
			Field: "timestamp", Code: CodeInvalidTimestamp, Message: "timestamp must be a valid RFC3339 instant",
		})
	}
}

// ValidateRTLSEvent applies structural checks to a location ping.
func ValidateRTLSEvent(ev RTLSEvent) ValidationResult {
	var result ValidationResult
	validateTimestamp(&result, ev.Timestamp)
	requireFields(&result,
		requiredField{"assetId", ev.AssetID},
		requiredField{"facilityId", ev.FacilityID},
	)
	for _, fe := range []*FieldError{
		validateEnum(ev.SourceType, rtlsSourceValues, "sourceType"),
		validateRange(ev.Confidence, 0, 1, "confidence"),
	} {
		if fe != nil {
			result.Errors = append(result.Errors, *fe)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateMaintenanceEvent applies structural checks to a maintenance record.
func ValidateMaintenanceEvent(ev MaintenanceEvent) ValidationResult {
	var result ValidationResult
	validateTimestamp(&result, ev.Timestamp)
	requireFields(&result,
		requiredField{"assetId", ev.AssetID},
		requiredField{"facilityId", ev.FacilityID},
		requiredField{"eventType", ev.EventType},
	)
	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateErrorEvent applies structural checks to a device fault report.
func ValidateErrorEvent(ev ErrorEvent) ValidationResult {
	var result ValidationResult
	validateTimestamp(&result, ev.Timestamp)
	requireFields(&result,
		requiredField{"assetId", ev.AssetID},
		requiredField{"facilityId", ev.FacilityID},
		requiredField{"errorCode", ev.ErrorCode},
	)
	if fe := validateEnum(ev.Severity, severityValues, "severity"); fe != nil {
		result.Errors = append(result.Errors, *fe)
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateTelemetryEvents maps ValidateTelemetryEvent over a list.
func ValidateTelemetryEvents(events []TelemetryEvent) BatchValidationSummary {
	summary := BatchValidationSummary{Total: len(events)}
	for _, ev := range events {
		result := ValidateTelemetryEvent(ev)
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
		summary.ErrorCount += len(result.Errors)
		summary.WarningCount += len(result.Warnings)
	}
	return summary
}
