package rbac

// 权限常量
const (
	PermissionReadPipeline = "pipeline:read"
	PermissionReadGraph    = "pipeline_graph:read"
	PermissionWriteProject = "project:write"
	// 敏感操作
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleAdmin   = "admin"
	RolePartner = "partner"
	RoleSeller  = "seller"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleSeller: {
		PermissionReadPipeline,
		PermissionReadGraph,
	},
	RolePartner: {
		PermissionReadPipeline,
		PermissionReadGraph,
		PermissionWriteProject,
	},
	RoleAdmin: {
		PermissionReadPipeline,
		PermissionReadGraph,
		PermissionWriteProject,
		PermissionReplayOutbox,
	},
}

// KnownRole 角色是否存在
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 与 HasPermission 相同，但返回错误便于 handler 处理
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}

// ValidatePartnerInPayload 非管理员只能写自己合作方的项目
func ValidatePartnerInPayload(role, tokenPartnerID, payloadPartnerID string) error {
	if role == RoleAdmin {
		return nil
	}
	if tokenPartnerID == "" || payloadPartnerID != tokenPartnerID {
		return &PartnerMismatchError{
			TokenPartnerID:   tokenPartnerID,
			PayloadPartnerID: payloadPartnerID,
		}
	}
	return nil
}

// PartnerMismatchError payload 中的 partnerId 与 token 不一致
type PartnerMismatchError struct {
	TokenPartnerID   string
	PayloadPartnerID string
}

func (e *PartnerMismatchError) Error() string {
	return "partnerId in payload does not match token"
}
