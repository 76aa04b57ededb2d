// Package rbac resolves a set of role names into a permission set. Role
// assignment itself lives on the user record; nothing here is persisted.
package rbac

const (
	PermIngestWrite      = "ingest:write"
	PermIngestRead       = "ingest:read"
	PermMatchExecute     = "match:execute"
	PermMatchRead        = "match:read"
	PermExceptionsRead   = "exceptions:read"
	PermCaseAssign       = "case:assign"
	PermCaseComment      = "case:comment"
	PermCaseStatusChange = "case:status_change"
	PermCaseClose        = "case:close"
	PermAdminRules       = "admin:rules"
	PermAuditRead        = "audit:read"
	PermAnalyticsRead    = "analytics:read"
)

var rolePermissions = map[string][]string{
	"admin": {
		PermIngestWrite, PermIngestRead,
		PermMatchExecute, PermMatchRead,
		PermExceptionsRead,
		PermCaseAssign, PermCaseComment, PermCaseStatusChange, PermCaseClose,
		PermAdminRules, PermAuditRead, PermAnalyticsRead,
	},
	"operator_l1": {
		PermMatchRead, PermExceptionsRead, PermAnalyticsRead,
		PermCaseComment, PermCaseStatusChange,
	},
	"operator_l2": {
		PermMatchRead, PermExceptionsRead, PermAnalyticsRead,
		PermCaseAssign, PermCaseComment, PermCaseStatusChange, PermCaseClose,
	},
	"auditor": {
		PermAuditRead, PermExceptionsRead, PermMatchRead, PermAnalyticsRead,
	},
	"finance_viewer": {
		PermMatchRead, PermExceptionsRead, PermAnalyticsRead,
	},
}

// Resolve returns the union of permissions granted by the given roles.
// Unknown role names grant nothing.
func Resolve(roles []string) map[string]bool {
	perms := map[string]bool{}
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			perms[p] = true
		}
	}
	return perms
}

func HasPermission(roles []string, permission string) bool {
	return Resolve(roles)[permission]
}

// KnownRoles lists the role names this service understands, for seeding
// and input validation.
func KnownRoles() []string {
	return []string{"admin", "operator_l1", "operator_l2", "auditor", "finance_viewer"}
}

func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
