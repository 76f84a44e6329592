package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleSeller, PermissionReadPipeline, true},
		{RoleSeller, PermissionWriteProject, false},
		{RolePartner, PermissionWriteProject, true},
		{RolePartner, PermissionReplayOutbox, false},
		{RoleAdmin, PermissionReplayOutbox, true},
		{"ghost", PermissionReadPipeline, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(RoleAdmin, PermissionWriteProject))

	err := CheckPermission(RoleSeller, PermissionWriteProject)
	var denied *PermissionDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, RoleSeller, denied.Role)
}

func TestValidatePartnerInPayload(t *testing.T) {
	assert.NoError(t, ValidatePartnerInPayload(RoleAdmin, "", "p-9"))
	assert.NoError(t, ValidatePartnerInPayload(RolePartner, "p-1", "p-1"))
	assert.Error(t, ValidatePartnerInPayload(RolePartner, "p-1", "p-2"))
	assert.Error(t, ValidatePartnerInPayload(RolePartner, "", ""))
}

func TestKnownRole(t *testing.T) {
	assert.True(t, KnownRole(RoleSeller))
	assert.False(t, KnownRole("root"))
}
