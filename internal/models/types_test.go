package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAuthorizes(t *testing.T) {
	cases := []struct {
		role Role
		kind MutationKind
		want bool
	}{
		{RoleKiosk, KindAdd, true},
		{RoleKiosk, KindDeduct, false},
		{RoleMerchant, KindDeduct, true},
		{RoleMerchant, KindAdd, false},
		{RoleAdmin, KindAdd, true},
		{RoleAdmin, KindDeduct, true},
		{RoleHolder, KindAdd, false},
		{RoleHolder, KindDeduct, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.role.Authorizes(c.kind), "%s/%s", c.role, c.kind)
	}
}

func TestAllowedDenomination(t *testing.T) {
	for _, d := range AllowedDenominations {
		assert.True(t, AllowedDenomination(d))
	}
	for _, bad := range []int64{0, -10, 3, 7, 11, 100, 1000} {
		assert.False(t, AllowedDenomination(bad), "%d", bad)
	}
}

func TestValidateRejectsBadAmount(t *testing.T) {
	_, err := MutationRequest{Amount: 3, TargetUsername: "alice"}.Validate(KindAdd, "k1")
	assert.ErrorIs(t, err, ErrAmountNotAllowed)
}

func TestValidateRequiresExactlyOneTarget(t *testing.T) {
	_, err := MutationRequest{Amount: 10}.Validate(KindAdd, "k1")
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = MutationRequest{Amount: 10, TargetUsername: "alice", UserToken: "tok"}.Validate(KindAdd, "k1")
	assert.ErrorIs(t, err, ErrAmbiguousTarget)
}

func TestValidateBuildsMutation(t *testing.T) {
	mut, err := MutationRequest{Amount: 20, UserToken: "tok"}.Validate(KindDeduct, "k9")
	require.NoError(t, err)
	assert.Equal(t, KindDeduct, mut.Kind)
	assert.Equal(t, int64(20), mut.Amount)
	assert.Equal(t, "k9", mut.IdempotencyKey)
	assert.Equal(t, "tok", mut.UserToken)
	assert.Empty(t, mut.TargetUsername)
}
