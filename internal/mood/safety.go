package mood

// RiskLevel is the psychological-safety risk level derived from aggregate
// meeting metrics.
type RiskLevel string

const (
	// RiskLow indicates healthy team dynamics.
	RiskLow RiskLevel = "Low"
	// RiskMedium indicates dynamics that warrant closer monitoring.
	RiskMedium RiskLevel = "Medium"
	// RiskHigh indicates dynamics that need immediate attention.
	RiskHigh RiskLevel = "High"
)

// Risk thresholds. High risk requires two or more high factors; medium risk
// requires two or more medium factors.
const (
	highRiskSilencePct = 25.0
	highRiskStressPct  = 40.0
	highRiskVolatility = 7.5

	mediumRiskSilencePct    = 15.0
	mediumRiskStressPct     = 30.0
	mediumRiskVolatility    = 5.5
	mediumRiskParticipation = 50.0
)

// SafetyInput carries the aggregate metrics used for risk assessment.
type SafetyInput struct {
	// SilencePct is the percentage of silent windows.
	SilencePct float64
	// StressPct is the share of the Stressed category in the distribution.
	StressPct float64
	// Volatility is the 0-10 volatility score.
	Volatility float64
	// ParticipationPct is the percentage of active-speech windows.
	ParticipationPct float64
}

// AssessSafety derives a psychological-safety risk level from aggregate
// metrics. Deterministic: identical input always yields the same level.
func AssessSafety(in SafetyInput) RiskLevel {
	highCount := 0
	if in.SilencePct > highRiskSilencePct {
		highCount++
	}
	if in.StressPct > highRiskStressPct {
		highCount++
	}
	if in.Volatility > highRiskVolatility {
		highCount++
	}
	if highCount >= 2 {
		return RiskHigh
	}

	mediumCount := 0
	if in.SilencePct > mediumRiskSilencePct {
		mediumCount++
	}
	if in.StressPct > mediumRiskStressPct {
		mediumCount++
	}
	if in.Volatility > mediumRiskVolatility {
		mediumCount++
	}
	if in.ParticipationPct < mediumRiskParticipation {
		mediumCount++
	}
	if mediumCount >= 2 {
		return RiskMedium
	}

	return RiskLow
}

// Recommendations returns canned facilitation advice for a risk level.
func Recommendations(level RiskLevel) []string {
	switch level {
	case RiskHigh:
		return []string{
			"Pause all group decision-making",
			"Run one-to-one check-ins with all team members",
			"Consider a psychological safety retrospective",
			"Address concerns before the next meeting",
		}
	case RiskMedium:
		return []string{
			"Monitor team dynamics closely",
			"Create an anonymous feedback channel",
			"Check in with quieter team members",
			"Consider shorter, more focused meetings",
		}
	default:
		return []string{
			"Current team dynamics appear healthy",
			"Maintain open communication channels",
			"Continue monitoring participation patterns",
		}
	}
}
