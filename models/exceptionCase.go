package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"gorm.io/gorm"
)

// ExceptionCase is the work item opened for every non-MATCHED result row.
// Status moves through the workflow via conditional updates; CaseAction
// rows are the append-only history.
type ExceptionCase struct {
	ID           string            `gorm:"primaryKey;size:36" json:"case_id"`
	RunId        string            `gorm:"size:36;not null;index" json:"run_id"`
	ResultRowId  string            `gorm:"size:36;not null;uniqueIndex" json:"result_row_id"`
	BusinessDate string            `gorm:"size:10;not null;index" json:"business_date"`
	Category     ExceptionCategory `gorm:"size:32;not null;index" json:"category"`
	Severity     Severity          `gorm:"type:enum('LOW','MEDIUM','HIGH');not null;index" json:"severity"`
	Status       CaseStatus        `gorm:"type:enum('NEW','TRIAGED','IN_PROGRESS','CLOSED');not null;index" json:"status"`
	AssignedTo   *string           `gorm:"size:64;index" json:"assigned_to"`
	Rrn          string            `gorm:"size:32;index" json:"rrn"`
	Arn          string            `gorm:"size:64" json:"arn"`
	Currency     string            `gorm:"size:3" json:"currency"`
	AmountDelta  *string           `gorm:"size:32" json:"amount_delta"`
	Title        string            `gorm:"size:255;not null" json:"title"`
	Resolution   *string           `gorm:"size:1000" json:"resolution"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	ClosedAt     *time.Time        `json:"closed_at"`
}

// CaseAction is one entry in a case's history. Rows are inserted and never
// updated or deleted.
type CaseAction struct {
	ID         int            `gorm:"primaryKey" json:"id"`
	CaseId     string         `gorm:"size:36;not null;index:idx_action_case_time,priority:1" json:"case_id"`
	ActionType CaseActionType `gorm:"size:20;not null" json:"action_type"`
	Actor      string         `gorm:"size:64;not null" json:"actor"`
	FromStatus *CaseStatus    `gorm:"size:20" json:"from_status"`
	ToStatus   *CaseStatus    `gorm:"size:20" json:"to_status"`
	Comment    string         `gorm:"size:2000" json:"comment"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index:idx_action_case_time,priority:2" json:"created_at"`
}

// Status changes move forward or sideways among the open states only.
// CLOSED is reached exclusively through the close action and is terminal.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusNew:        {CaseStatusTriaged, CaseStatusInProgress},
	CaseStatusTriaged:    {CaseStatusInProgress},
	CaseStatusInProgress: {CaseStatusTriaged},
	CaseStatusClosed:     {},
}

// AllowedCaseTransition reports whether a plain status change may move a
// case from one status to another.
func AllowedCaseTransition(from, to CaseStatus) bool {
	for _, next := range caseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func GetExceptionCase(ctx context.Context, db *gorm.DB, caseId string) (*ExceptionCase, error) {
	var c ExceptionCase
	if err := db.WithContext(ctx).Where("id = ?", caseId).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindNotFound, "case not found: %s", caseId)
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCaseStatus performs the guarded state change. The WHERE clause
// carries the expected current status, so a concurrent transition makes
// this a no-op and surfaces as CONFLICT.
func UpdateCaseStatus(ctx context.Context, tx *gorm.DB, caseId string, from, to CaseStatus, resolution *string) error {
	updates := map[string]interface{}{"status": to}
	if to == CaseStatusClosed {
		now := time.Now().UTC()
		updates["closed_at"] = &now
		if resolution != nil {
			updates["resolution"] = resolution
		}
	}
	res := tx.WithContext(ctx).Model(&ExceptionCase{}).
		Where("id = ? AND status = ?", caseId, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrKindConflict, "case %s is no longer in status %s", caseId, from)
	}
	return nil
}

// UpdateCaseAssignee sets the owner and, in the same statement,
// auto-advances a NEW case to TRIAGED. Closed cases never change hands.
func UpdateCaseAssignee(ctx context.Context, tx *gorm.DB, caseId string, assignee *string) error {
	res := tx.WithContext(ctx).Model(&ExceptionCase{}).
		Where("id = ? AND status <> ?", caseId, CaseStatusClosed).
		Updates(map[string]interface{}{
			"assigned_to": assignee,
			"status":      gorm.Expr("IF(status = ?, ?, status)", CaseStatusNew, CaseStatusTriaged),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrKindInvalidTransition, "case %s is closed and cannot be reassigned", caseId)
	}
	return nil
}

func AppendCaseAction(ctx context.Context, tx *gorm.DB, action *CaseAction) error {
	return tx.WithContext(ctx).Create(action).Error
}

func ListCaseActions(ctx context.Context, caseId string) ([]CaseAction, error) {
	var actions []CaseAction
	err := config.GetDB().WithContext(ctx).
		Where("case_id = ?", caseId).
		Order("created_at, id").
		Find(&actions).Error
	return actions, err
}

// CaseFilter is the query surface of the exception queue.
type CaseFilter struct {
	BusinessDate string
	RunId        string
	Status       string
	Category     string
	Severity     string
	AssignedTo   string
	Search       string
	Page         int
	PageSize     int
}

func (f *CaseFilter) normalize() error {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" {
		if _, ok := ParseCaseStatus(f.Status); !ok {
			return utils.NewError(utils.ErrKindValidation, "unknown case status filter: %s", f.Status)
		}
	}
	f.Search = strings.TrimSpace(f.Search)
	return nil
}

type CasePage struct {
	Items      []ExceptionCase `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Total      int64           `json:"total"`
	TotalPages int64           `json:"total_pages"`
}

// QueryExceptionCases pages the queue, highest severity and oldest first
// so operators drain the riskiest backlog from the top.
func QueryExceptionCases(ctx context.Context, filter CaseFilter) (*CasePage, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	q := config.GetDB().WithContext(ctx).Model(&ExceptionCase{})
	if filter.BusinessDate != "" {
		q = q.Where("business_date = ?", filter.BusinessDate)
	}
	if filter.RunId != "" {
		q = q.Where("run_id = ?", filter.RunId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", strings.ToUpper(filter.Category))
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", strings.ToUpper(filter.Severity))
	}
	if filter.AssignedTo != "" {
		q = q.Where("assigned_to = ?", filter.AssignedTo)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("rrn LIKE ? OR arn LIKE ? OR title LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []ExceptionCase
	err := q.Order("FIELD(severity, 'HIGH', 'MEDIUM', 'LOW'), created_at, id").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &CasePage{
		Items:      items,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Total:      total,
		TotalPages: (total + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	}, nil
}
