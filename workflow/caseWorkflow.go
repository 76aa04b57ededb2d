package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"gorm.io/gorm"
)

// AssignCase puts a case on someone's desk. Assigning a NEW case also
// advances it to TRIAGED; a closed case cannot change hands.
func AssignCase(ctx context.Context, caseId, assignee string) (*models.ExceptionCase, error) {
	if err := RequirePermission(ctx, rbac.PermCaseAssign, "EXCEPTION_ASSIGN", "exception_case", caseId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	current, err := models.GetExceptionCase(ctx, db, caseId)
	if err != nil {
		return nil, err
	}
	if current.Status == models.CaseStatusClosed {
		return nil, utils.NewError(utils.ErrKindInvalidTransition, "case %s is closed and cannot be reassigned", caseId)
	}

	var target *string
	if assignee != "" {
		user, err := models.GetUserByLogin(ctx, assignee)
		if err != nil {
			return nil, err
		}
		if user.Status != models.UserStatusActive {
			return nil, utils.NewError(utils.ErrKindValidation, "user %s is not active", assignee)
		}
		target = &user.Login
	}

	actor, _ := utils.GetActorLoginFromContext(ctx)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.UpdateCaseAssignee(ctx, tx, caseId, target); err != nil {
			return err
		}
		comment := "unassigned"
		if target != nil {
			comment = "assigned to " + *target
		}
		action := models.CaseAction{
			CaseId: caseId, ActionType: models.ActionAssign, Actor: actor, Comment: comment,
		}
		if current.Status == models.CaseStatusNew {
			from, to := models.CaseStatusNew, models.CaseStatusTriaged
			action.FromStatus, action.ToStatus = &from, &to
		}
		if err := models.AppendCaseAction(ctx, tx, &action); err != nil {
			return err
		}
		return models.AppendAudit(ctx, tx, "EXCEPTION_ASSIGN", "exception_case", caseId, models.AuditSuccess,
			map[string]interface{}{"assignee": assignee})
	})
	if err != nil {
		return nil, err
	}
	return models.GetExceptionCase(ctx, db, caseId)
}

// CommentCase appends a free-text note to an open case.
func CommentCase(ctx context.Context, caseId, comment string) (*models.CaseAction, error) {
	if err := RequirePermission(ctx, rbac.PermCaseComment, "EXCEPTION_COMMENT", "exception_case", caseId); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, utils.NewError(utils.ErrKindValidation, "comment must not be empty")
	}
	if len(comment) > 2000 {
		return nil, utils.NewError(utils.ErrKindValidation, "comment exceeds 2000 characters")
	}

	db := config.GetDB()
	current, err := models.GetExceptionCase(ctx, db, caseId)
	if err != nil {
		return nil, err
	}
	if current.Status == models.CaseStatusClosed {
		return nil, utils.NewError(utils.ErrKindInvalidTransition, "case %s is closed and cannot take comments", caseId)
	}

	actor, _ := utils.GetActorLoginFromContext(ctx)
	action := models.CaseAction{
		CaseId: caseId, ActionType: models.ActionComment, Actor: actor, Comment: comment,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.AppendCaseAction(ctx, tx, &action); err != nil {
			return err
		}
		return models.AppendAudit(ctx, tx, "EXCEPTION_COMMENT", "exception_case", caseId, models.AuditSuccess, nil)
	})
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// ChangeCaseStatus moves a case among the open states. CLOSED is never a
// legal source or target here; closing goes through CloseCase.
func ChangeCaseStatus(ctx context.Context, caseId, toStatus string) (*models.ExceptionCase, error) {
	if err := RequirePermission(ctx, rbac.PermCaseStatusChange, "EXCEPTION_STATUS_CHANGE", "exception_case", caseId); err != nil {
		return nil, err
	}
	to, ok := models.ParseCaseStatus(strings.ToUpper(strings.TrimSpace(toStatus)))
	if !ok {
		return nil, utils.NewError(utils.ErrKindValidation, "unknown case status: %s", toStatus)
	}
	if to == models.CaseStatusClosed {
		return nil, utils.NewError(utils.ErrKindInvalidTransition, "cases are closed via the close action, not a status change")
	}

	db := config.GetDB()
	current, err := models.GetExceptionCase(ctx, db, caseId)
	if err != nil {
		return nil, err
	}
	if !models.AllowedCaseTransition(current.Status, to) {
		return nil, utils.NewError(utils.ErrKindInvalidTransition,
			"case %s cannot move from %s to %s", caseId, current.Status, to)
	}

	actor, _ := utils.GetActorLoginFromContext(ctx)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.UpdateCaseStatus(ctx, tx, caseId, current.Status, to, nil); err != nil {
			return err
		}
		from := current.Status
		if err := models.AppendCaseAction(ctx, tx, &models.CaseAction{
			CaseId: caseId, ActionType: models.ActionStatusChange, Actor: actor,
			FromStatus: &from, ToStatus: &to,
		}); err != nil {
			return err
		}
		return models.AppendAudit(ctx, tx, "EXCEPTION_STATUS_CHANGE", "exception_case", caseId, models.AuditSuccess,
			map[string]interface{}{"from": from, "to": to})
	})
	if err != nil {
		return nil, err
	}
	return models.GetExceptionCase(ctx, db, caseId)
}

// CloseCase terminates a case from any open state with a resolution. No
// action is accepted on the case afterwards.
func CloseCase(ctx context.Context, caseId, resolution string) (*models.ExceptionCase, error) {
	if err := RequirePermission(ctx, rbac.PermCaseClose, "EXCEPTION_CLOSE", "exception_case", caseId); err != nil {
		return nil, err
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, utils.NewError(utils.ErrKindValidation, "closing a case requires a resolution")
	}

	db := config.GetDB()
	current, err := models.GetExceptionCase(ctx, db, caseId)
	if err != nil {
		return nil, err
	}
	if current.Status == models.CaseStatusClosed {
		return nil, utils.NewError(utils.ErrKindInvalidTransition, "case %s is already closed", caseId)
	}

	actor, _ := utils.GetActorLoginFromContext(ctx)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.UpdateCaseStatus(ctx, tx, caseId, current.Status, models.CaseStatusClosed, &resolution); err != nil {
			return err
		}
		from, to := current.Status, models.CaseStatusClosed
		if err := models.AppendCaseAction(ctx, tx, &models.CaseAction{
			CaseId: caseId, ActionType: models.ActionClose, Actor: actor,
			FromStatus: &from, ToStatus: &to, Comment: resolution,
		}); err != nil {
			return err
		}
		return models.AppendAudit(ctx, tx, "EXCEPTION_CLOSE", "exception_case", caseId, models.AuditSuccess,
			map[string]interface{}{"from": from, "resolution": resolution})
	})
	if err != nil {
		return nil, err
	}
	return models.GetExceptionCase(ctx, db, caseId)
}

// CaseWithHistory bundles a case with its full action trail.
type CaseWithHistory struct {
	Case    models.ExceptionCase `json:"case"`
	Actions []models.CaseAction  `json:"actions"`
}

func GetCaseWithHistory(ctx context.Context, caseId string) (*CaseWithHistory, error) {
	db := config.GetDB()
	current, err := models.GetExceptionCase(ctx, db, caseId)
	if err != nil {
		return nil, err
	}
	actions, err := models.ListCaseActions(ctx, caseId)
	if err != nil {
		return nil, err
	}
	return &CaseWithHistory{Case: *current, Actions: actions}, nil
}
