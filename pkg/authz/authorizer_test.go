package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	a, err := NewAuthorizer(Config{})
	require.NoError(t, err)
	return a
}

func TestEmbeddedPoliciesParse(t *testing.T) {
	a := newTestAuthorizer(t)
	assert.Equal(t, 2, a.PolicyCount())
}

func TestInvalidPolicyBytes(t *testing.T) {
	_, err := NewAuthorizer(Config{PolicyBytes: []byte("permit (")})
	require.Error(t, err)
}

func TestAssignmentDecisions(t *testing.T) {
	a := newTestAuthorizer(t)

	record := Resource{
		UID:      "rec_001",
		Type:     "Record",
		OrgUnit:  "cardiology",
		Assigned: []string{"usr_nancy"},
	}

	tests := []struct {
		name      string
		principal Principal
		want      bool
	}{
		{
			name:      "doctor always permitted",
			principal: Principal{UID: "usr_dora", Role: RoleDoctor, OrgUnit: "cardiology"},
			want:      true,
		},
		{
			name:      "admin always permitted",
			principal: Principal{UID: "usr_alex", Role: RoleAdmin},
			want:      true,
		},
		{
			name:      "assigned nurse permitted",
			principal: Principal{UID: "usr_nancy", Role: RoleNurse, OrgUnit: "cardiology"},
			want:      true,
		},
		{
			name:      "unassigned nurse denied",
			principal: Principal{UID: "usr_nina", Role: RoleNurse, OrgUnit: "cardiology"},
			want:      false,
		},
		{
			name:      "unrecognized role defaults to allow",
			principal: Principal{UID: "usr_rita", Role: Role("receptionist")},
			want:      true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := a.Authorize(context.Background(), Request{
				Principal: tc.principal,
				Action:    "record:read",
				Resource:  record,
			})
			assert.Equal(t, tc.want, d.Allowed)
			if tc.want {
				assert.NotEmpty(t, d.PolicyID, "allows should name the permitting policy")
			} else {
				assert.Contains(t, d.Reason, "not assigned")
			}
		})
	}
}

func TestNurseDeniedOnEmptyAssignmentSet(t *testing.T) {
	a := newTestAuthorizer(t)

	d := a.Authorize(context.Background(), Request{
		Principal: Principal{UID: "usr_nancy", Role: RoleNurse},
		Action:    "record:read",
		Resource:  Resource{UID: "rec_002", Type: "Record"},
	})
	assert.False(t, d.Allowed)
}
