package authz

import "time"

// Role represents a principal's clinical role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
	RoleNurse  Role = "nurse"
)

// OrgUnitRestricted reports whether the role's resource access is scoped to
// its own org unit. Only restricted roles pay the resource lookup, org-unit,
// and assignment checks; elevated and unrecognized roles proceed straight to
// trust scoring.
func (r Role) OrgUnitRestricted() bool {
	return r == RoleNurse
}

// Principal represents the authenticated actor making the request.
type Principal struct {
	UID     string // e.g. "usr_ab12cd34"
	Role    Role
	OrgUnit string // department, e.g. "cardiology"
}

// Resource represents the record being accessed.
type Resource struct {
	UID      string
	Type     string   // "Record", "Patient", "Appointment"
	OrgUnit  string   // owning department; empty for unscoped resources
	Assigned []string // principal UIDs on the record's care team
}

// Request contains everything needed for an assignment decision.
type Request struct {
	Principal Principal
	Action    string // e.g. "record:read"
	Resource  Resource
}

// Decision is the result of an assignment check.
type Decision struct {
	Allowed  bool
	Reason   string        // human-readable explanation for logging/audit
	PolicyID string        // ID of the policy that determined the outcome
	Duration time.Duration // how long the check took
}
