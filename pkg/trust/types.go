// Package trust computes graduated trust scores for authenticated principals.
//
// Six weighted behavioral and contextual factors combine into a 0-100 score
// that maps onto an ALLOW/CHALLENGE/DENY action through fixed thresholds.
// Evaluations are cached per principal for a freshness window; on a cache hit
// only the time-sensitive context factor is recomputed.
package trust

import (
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/authz"
)

// Action is the graduated decision derived from a trust score.
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionDeny      Action = "DENY"
)

// Default score thresholds. Action is a pure function of score:
// score >= allow -> ALLOW, challenge <= score < allow -> CHALLENGE,
// score < challenge -> DENY.
const (
	DefaultAllowThreshold     = 70.0
	DefaultChallengeThreshold = 50.0
)

// Factor identifies one of the six scoring dimensions.
type Factor int

const (
	FactorSessionHealth Factor = iota
	FactorAuthTrackRecord
	FactorDeviceConsistency
	FactorAccessPattern
	FactorContextCompliance
	FactorRoleRisk

	// NumFactors is the number of scoring dimensions.
	NumFactors
)

// String returns the factor's name.
func (f Factor) String() string {
	switch f {
	case FactorSessionHealth:
		return "session_health"
	case FactorAuthTrackRecord:
		return "auth_track_record"
	case FactorDeviceConsistency:
		return "device_consistency"
	case FactorAccessPattern:
		return "access_pattern"
	case FactorContextCompliance:
		return "context_compliance"
	case FactorRoleRisk:
		return "role_risk"
	default:
		return "unknown"
	}
}

// weights is the fixed per-factor weight table, indexed by Factor.
// The weights sum to 1.0.
var weights = [NumFactors]float64{
	FactorSessionHealth:     0.25,
	FactorAuthTrackRecord:   0.20,
	FactorDeviceConsistency: 0.15,
	FactorAccessPattern:     0.15,
	FactorContextCompliance: 0.15,
	FactorRoleRisk:          0.10,
}

// Weight returns the fixed weight for a factor.
func Weight(f Factor) float64 {
	return weights[f]
}

// FactorSet holds all six factor values, each in [0,100], indexed by Factor.
type FactorSet [NumFactors]float64

// Weighted returns the weighted sum of the factors. With all factors in
// [0,100] and weights summing to 1.0 the result is already in range; callers
// still clamp defensively after cache-hit adjustments.
func (fs FactorSet) Weighted() float64 {
	sum := 0.0
	for f := Factor(0); f < NumFactors; f++ {
		sum += fs[f] * weights[f]
	}
	return sum
}

// Evaluation is the result of scoring one principal at one point in time.
type Evaluation struct {
	PrincipalID string
	Score       float64
	Action      Action
	Reason      string
	Factors     FactorSet
	ComputedAt  time.Time
}

// actionForScore maps a score onto an action through the given thresholds.
func actionForScore(score, allow, challenge float64) (Action, string) {
	switch {
	case score >= allow:
		return ActionAllow, "high trust score - access permitted"
	case score >= challenge:
		return ActionChallenge, "moderate trust score - additional verification required"
	default:
		return ActionDeny, "low trust score - access denied"
	}
}

// RoleRisk returns the fixed base-trust value for a role. Higher privilege
// carries more scrutiny, hence a lower base value. Unrecognized roles get a
// neutral 50.
func RoleRisk(role authz.Role) float64 {
	switch role {
	case authz.RoleAdmin:
		return 70
	case authz.RoleDoctor:
		return 85
	case authz.RoleNurse:
		return 90
	default:
		return 50
	}
}

// recognizedOrgUnit reports whether the org unit is one the deployment knows.
func recognizedOrgUnit(unit string) bool {
	switch unit {
	case "cardiology", "neurology", "oncology", "pediatrics", "emergency", "radiology", "general":
		return true
	default:
		return false
	}
}

// recognizedRole reports whether the role is part of the clinical role model.
func recognizedRole(role authz.Role) bool {
	switch role {
	case authz.RoleAdmin, authz.RoleDoctor, authz.RoleNurse:
		return true
	default:
		return false
	}
}

// clamp bounds a factor or score to [0,100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
