package ingestion

// Health score band boundaries are inclusive on the lower side of each band:
// a score of exactly 20 is critical, 21 is poor.
const (
	healthScoreCriticalMax = 20
	healthScorePoorMax     = 40
	healthScoreFairMax     = 60
	healthScoreGoodMax     = 80
)

// RUL band boundaries in hours (1 day, 7 days, 30 days, 90 days).
const (
	rulCriticalMaxHours = 24
	rulPoorMaxHours     = 168
	rulFairMaxHours     = 720
	rulGoodMaxHours     = 2160
)

// HealthScoreToStatus maps a 0-100 composite score to a condition band.
func HealthScoreToStatus(score float64) HealthStatus {
	switch {
	case score <= healthScoreCriticalMax:
		return HealthCritical
	case score <= healthScorePoorMax:
		return HealthPoor
	case score <= healthScoreFairMax:
		return HealthFair
	case score <= healthScoreGoodMax:
		return HealthGood
	default:
		return HealthExcellent
	}
}

// RULToStatus maps a time-to-failure estimate in hours to a condition band.
func RULToStatus(hours float64) HealthStatus {
	switch {
	case hours <= rulCriticalMaxHours:
		return HealthCritical
	case hours <= rulPoorMaxHours:
		return HealthPoor
	case hours <= rulFairMaxHours:
		return HealthFair
	case hours <= rulGoodMaxHours:
		return HealthGood
	default:
		return HealthExcellent
	}
}

// HealthInputs are the optional signals the composite score is derived from.
// A nil field omits its penalty term entirely.
type HealthInputs struct {
	OperatingHours     *float64
	ExpectedLifeHours  *float64
	ErrorCount24h      *int
	DaysSinceLastPM    *float64
	PMIntervalDays     *float64
	FailureProbability *float64
}

// CalculateHealthScore starts at 100 and subtracts four independently-capped
// penalty terms, flooring the result at 0.
func CalculateHealthScore(in HealthInputs) float64 {
	score := 100.0

	if in.OperatingHours != nil && in.ExpectedLifeHours != nil && *in.ExpectedLifeHours > 0 {
		usage := (*in.OperatingHours / *in.ExpectedLifeHours) * 30
		score -= capPenalty(usage, 25)
	}
	if in.ErrorCount24h != nil {
		score -= capPenalty(float64(*in.ErrorCount24h)*5, 25)
	}
	if in.DaysSinceLastPM != nil && in.PMIntervalDays != nil && *in.PMIntervalDays > 0 {
		ratio := *in.DaysSinceLastPM / *in.PMIntervalDays
		if ratio > 1 {
			score -= capPenalty((ratio-1)*20, 25)
		}
	}
	if in.FailureProbability != nil {
		score -= *in.FailureProbability * 25
	}

	if score < 0 {
		return 0
	}
	return score
}

func capPenalty(value, max float64) float64 {
	if value < 0 {
		return 0
	}
	if value > max {
		return max
	}
	return value
}
