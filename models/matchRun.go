package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScopeAll matches every currency; any other scope filter value selects a
// single currency partition.
const ScopeAll = "ALL"

// MatchRun is one execution of the matcher over a business date and scope.
// ActiveKey enforces at most one PENDING/RUNNING run per (date, scope): it
// holds "<date>|<scope>" while the run is active and NULL once terminal,
// so the unique index only ever sees one live value per pair.
type MatchRun struct {
	ID             string         `gorm:"primaryKey;size:36" json:"run_id"`
	BusinessDate   string         `gorm:"size:10;not null;index" json:"business_date"`
	ScopeFilter    string         `gorm:"size:16;not null" json:"scope_filter"`
	ActiveKey      *string        `gorm:"size:32;uniqueIndex" json:"-"`
	Status         MatchRunStatus `gorm:"type:enum('PENDING','RUNNING','FINISHED','FAILED');not null;index" json:"status"`
	RulesetVersion string         `gorm:"size:32;not null" json:"ruleset_version"`
	CreatedBy      string         `gorm:"size:64;not null" json:"created_by"`
	FailureReason  string         `gorm:"size:500" json:"failure_reason,omitempty"`
	StartedAt      *time.Time     `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func runActiveKey(businessDate, scopeFilter string) string {
	return fmt.Sprintf("%s|%s", businessDate, scopeFilter)
}

// CreateRun inserts a PENDING run. The insert itself is the
// check-and-insert: a second active run for the same (date, scope) trips
// the unique index and surfaces as CONFLICT, so two concurrent creators
// can never both win.
func CreateRun(ctx context.Context, businessDate, scopeFilter, rulesetVersion, createdBy string) (*MatchRun, error) {
	db := config.GetDB()
	key := runActiveKey(businessDate, scopeFilter)
	run := MatchRun{
		ID:             uuid.NewString(),
		BusinessDate:   businessDate,
		ScopeFilter:    scopeFilter,
		ActiveKey:      &key,
		Status:         RunStatusPending,
		RulesetVersion: rulesetVersion,
		CreatedBy:      createdBy,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, utils.NewError(utils.ErrKindConflict,
				"an active run already exists for business_date=%s scope=%s", businessDate, scopeFilter)
		}
		return nil, err
	}
	return &run, nil
}

// TransitionRun applies a status transition as a conditional update; a
// stale expectation reports CONFLICT instead of silently overwriting.
func TransitionRun(ctx context.Context, tx *gorm.DB, runId string, from, to MatchRunStatus, failureReason string) error {
	updates := map[string]interface{}{"status": to}
	now := time.Now().UTC()
	switch to {
	case RunStatusRunning:
		updates["started_at"] = &now
	case RunStatusFinished, RunStatusFailed:
		updates["finished_at"] = &now
		updates["active_key"] = nil
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	res := tx.WithContext(ctx).Model(&MatchRun{}).
		Where("id = ? AND status = ?", runId, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrKindConflict, "run %s is not in status %s", runId, from)
	}
	return nil
}

func GetRun(ctx context.Context, runId string) (*MatchRun, error) {
	db := config.GetDB()
	var run MatchRun
	if err := db.WithContext(ctx).Where("id = ?", runId).First(&run).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindNotFound, "run not found: %s", runId)
		}
		return nil, err
	}
	return &run, nil
}

func LatestRunForDate(ctx context.Context, businessDate string) (*MatchRun, error) {
	db := config.GetDB()
	var run MatchRun
	err := db.WithContext(ctx).
		Where("business_date = ?", businessDate).
		Order("created_at DESC, id DESC").
		First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindNotFound, "no run for business_date=%s", businessDate)
		}
		return nil, err
	}
	return &run, nil
}

func ListRuns(ctx context.Context, businessDate string, limit int) ([]MatchRun, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	db := config.GetDB()
	q := db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if businessDate != "" {
		q = q.Where("business_date = ?", businessDate)
	}
	var runs []MatchRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
