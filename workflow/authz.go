package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

// RequirePermission gates a state-changing operation. A denial is itself
// audited as a FAILURE event before the error goes back, so the trail
// shows who tried what, not only who succeeded.
func RequirePermission(ctx context.Context, permission, action, entityType, entityId string) error {
	roles, _ := utils.GetActorRolesFromContext(ctx)
	if rbac.HasPermission(roles, permission) {
		return nil
	}
	db := config.GetDB()
	logger := config.GetLogger()
	auditErr := models.AppendAudit(ctx, db, action, entityType, entityId, models.AuditFailure,
		map[string]interface{}{"denied_permission": permission, "roles": roles})
	if auditErr != nil {
		config.LogError(logger, "authz.go", "RequirePermission", "Auditing denied attempt", permission, auditErr)
	}
	return utils.NewError(utils.ErrKindAuthDenied, "missing permission %s", permission)
}
