// Package authz decides whether a principal is assigned to a resource.
//
// Assignment is role-polymorphic: elevated roles (doctor, admin) always pass,
// the restricted nurse role requires membership in the resource's care-team
// set, and unrecognized roles default to allow. The rules live in embedded
// Cedar policies so they can be audited and replaced without touching the
// evaluation path.
package authz

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cedar-policy/cedar-go"
)

//go:embed policies.cedar
var policiesContent []byte

// Config contains options for the Authorizer.
type Config struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyBytes allows loading policies from a custom source (for testing).
	// If nil, embedded policies.cedar is used.
	PolicyBytes []byte
}

// Authorizer wraps the Cedar policy engine. All care-team assignment
// decisions flow through this single component.
type Authorizer struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
}

// NewAuthorizer creates an authorizer with the given configuration.
func NewAuthorizer(cfg Config) (*Authorizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policyData := cfg.PolicyBytes
	if policyData == nil {
		policyData = policiesContent
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	return &Authorizer{
		policies: ps,
		logger:   logger,
	}, nil
}

// Authorize evaluates an assignment request against Cedar policies.
// The context parameter is available for future use (cancellation, tracing).
func (a *Authorizer) Authorize(ctx context.Context, req Request) Decision {
	start := time.Now()

	entities := buildEntities(req.Principal, req.Resource)
	cedarReq := buildCedarRequest(req)

	decision, diagnostic := cedar.Authorize(a.policies, entities, cedarReq)

	policyID := ""
	if len(diagnostic.Reasons) > 0 {
		policyID = string(diagnostic.Reasons[0].PolicyID)
	}

	allowed := decision == cedar.Allow
	result := Decision{
		Allowed:  allowed,
		Reason:   buildReason(req, allowed),
		PolicyID: policyID,
		Duration: time.Since(start),
	}

	a.logDecision(req, result, diagnostic)
	return result
}

// buildReason produces the human-readable explanation for the decision.
func buildReason(req Request, allowed bool) string {
	if allowed {
		return "assignment permitted"
	}
	return fmt.Sprintf("principal %s (%s) is not assigned to resource %s", req.Principal.UID, req.Principal.Role, req.Resource.UID)
}

// logDecision logs the assignment decision with structured fields.
func (a *Authorizer) logDecision(req Request, result Decision, diag cedar.Diagnostic) {
	a.logger.Info("assignment decision",
		"principal", req.Principal.UID,
		"role", req.Principal.Role,
		"action", req.Action,
		"resource", req.Resource.UID,
		"resource_type", req.Resource.Type,
		"decision", result.Allowed,
		"reason", result.Reason,
		"policy_id", result.PolicyID,
		"duration_us", result.Duration.Microseconds(),
	)

	for _, err := range diag.Errors {
		a.logger.Error("policy evaluation error",
			"policy", err.PolicyID,
			"error", err.Message,
		)
	}
}

// PolicyCount returns the number of loaded policies.
func (a *Authorizer) PolicyCount() int {
	count := 0
	for range a.policies.All() {
		count++
	}
	return count
}
