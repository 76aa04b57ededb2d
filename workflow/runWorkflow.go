package workflow

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/rbac"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

func runTimeout() time.Duration {
	if raw := os.Getenv("MATCH_RUN_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 10 * time.Minute
}

// CreateMatchRun validates the request and inserts a PENDING run. The
// single-active-run guarantee lives in the insert itself, not here.
func CreateMatchRun(ctx context.Context, businessDate, scopeFilter string) (*models.MatchRun, error) {
	if err := RequirePermission(ctx, rbac.PermMatchExecute, "MATCH_RUN_CREATE", "match_run", businessDate); err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01-02", businessDate); err != nil {
		return nil, utils.NewError(utils.ErrKindValidation, "business_date must be YYYY-MM-DD, got %q", businessDate)
	}
	if scopeFilter == "" {
		scopeFilter = models.ScopeAll
	}
	if scopeFilter != models.ScopeAll && len(scopeFilter) != 3 {
		return nil, utils.NewError(utils.ErrKindValidation, "scope_filter must be ALL or a 3-letter currency, got %q", scopeFilter)
	}

	db := config.GetDB()
	ruleset, err := models.ActiveRuleset(ctx, db)
	if err != nil {
		return nil, err
	}

	actor, _ := utils.GetActorLoginFromContext(ctx)
	run, err := models.CreateRun(ctx, businessDate, scopeFilter, ruleset.Version, actor)
	if err != nil {
		return nil, err
	}

	if auditErr := models.AppendAudit(ctx, db, "MATCH_RUN_CREATE", "match_run", run.ID, models.AuditSuccess,
		map[string]interface{}{"business_date": businessDate, "scope_filter": scopeFilter, "ruleset_version": ruleset.Version}); auditErr != nil {
		config.LogError(config.GetLogger(), "runWorkflow.go", "CreateMatchRun", "Auditing run creation", run.ID, auditErr)
	}
	return run, nil
}

// ExecuteMatchRun drives one run end to end: PENDING -> RUNNING, match,
// persist rows and cases, RUNNING -> FINISHED. Any failure lands on
// FAILED with the reason recorded; the terminal transition also frees the
// (date, scope) slot for the next run.
func ExecuteMatchRun(ctx context.Context, runId string) (*models.MatchRun, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	run, err := models.GetRun(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusPending {
		return nil, utils.NewError(utils.ErrKindConflict, "run %s is %s, only PENDING runs can execute", runId, run.Status)
	}

	// Best-effort cross-instance lock. The DB transitions are the real
	// guard; losing redis only loses the early duplicate-executor exit.
	if locker := config.GetRedisLock(); locker != nil {
		lock, lockErr := locker.Obtain(config.GetRedisContext(), "match_run:"+runId, runTimeout(), nil)
		if lockErr == nil {
			defer func() { _ = lock.Release(config.GetRedisContext()) }()
		} else if errors.Is(lockErr, redislock.ErrNotObtained) {
			return nil, utils.NewError(utils.ErrKindConflict, "run %s is already executing", runId)
		}
	}

	if err := models.TransitionRun(ctx, db, runId, models.RunStatusPending, models.RunStatusRunning, ""); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout())
	defer cancel()

	execErr := executeRunBody(runCtx, db, run)
	if execErr != nil {
		reason := execErr.Error()
		kind := utils.KindOf(execErr)
		if errors.Is(execErr, context.DeadlineExceeded) || kind == utils.ErrKindTimeout {
			reason = "run exceeded the execution time limit"
			execErr = utils.NewError(utils.ErrKindTimeout, "run %s timed out", runId)
		}
		// Terminal transition runs on the parent context so a timeout
		// on the work cannot also block the bookkeeping.
		if failErr := models.TransitionRun(ctx, db, runId, models.RunStatusRunning, models.RunStatusFailed, reason); failErr != nil {
			config.LogError(logger, "runWorkflow.go", "ExecuteMatchRun", "Marking run FAILED", runId, failErr)
		}
		if auditErr := models.AppendAudit(ctx, db, "MATCH_RUN_EXECUTE", "match_run", runId, models.AuditFailure,
			map[string]interface{}{"reason": reason}); auditErr != nil {
			config.LogError(logger, "runWorkflow.go", "ExecuteMatchRun", "Auditing failed run", runId, auditErr)
		}
		return nil, execErr
	}

	if err := models.TransitionRun(ctx, db, runId, models.RunStatusRunning, models.RunStatusFinished, ""); err != nil {
		return nil, err
	}
	if auditErr := models.AppendAudit(ctx, db, "MATCH_RUN_EXECUTE", "match_run", runId, models.AuditSuccess, nil); auditErr != nil {
		config.LogError(logger, "runWorkflow.go", "ExecuteMatchRun", "Auditing finished run", runId, auditErr)
	}
	return models.GetRun(ctx, runId)
}

// executeRunBody loads both feeds, runs the matcher and persists results
// plus derived cases in a single transaction, so a crash mid-write leaves
// no half-populated run behind.
func executeRunBody(ctx context.Context, db *gorm.DB, run *models.MatchRun) error {
	ruleset, err := loadRunRuleset(ctx, db, run.RulesetVersion)
	if err != nil {
		return err
	}
	rules := ruleset.ToMatchingRuleset()

	way4Txns, err := models.TransactionsForMatching(ctx, db, models.SourceWay4, run.BusinessDate, run.ScopeFilter)
	if err != nil {
		return err
	}
	visaTxns, err := models.TransactionsForMatching(ctx, db, models.SourceVisa, run.BusinessDate, run.ScopeFilter)
	if err != nil {
		return err
	}
	if len(way4Txns) == 0 || len(visaTxns) == 0 {
		return utils.NewError(utils.ErrKindValidation,
			"both sources must have data for %s before a run can execute (WAY4: %d, VISA: %d)",
			run.BusinessDate, len(way4Txns), len(visaTxns))
	}

	way4 := make([]matching.Record, 0, len(way4Txns))
	for _, t := range way4Txns {
		way4 = append(way4, t.ToMatchingRecord())
	}
	visa := make([]matching.Record, 0, len(visaTxns))
	for _, t := range visaTxns {
		visa = append(visa, t.ToMatchingRecord())
	}

	rows, err := matching.Match(ctx, way4, visa, rules)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		persisted, err := models.PersistResultRows(ctx, tx, run.ID, rows)
		if err != nil {
			return err
		}
		cases := BuildExceptionCases(run, rows, persisted, rules)
		if len(cases) > 0 {
			if err := tx.CreateInBatches(&cases, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func loadRunRuleset(ctx context.Context, db *gorm.DB, version string) (*models.MatchRuleset, error) {
	var ruleset models.MatchRuleset
	if err := db.WithContext(ctx).Where("version = ?", version).First(&ruleset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindInternal, "ruleset %s referenced by run no longer exists", version)
		}
		return nil, err
	}
	return &ruleset, nil
}

// CreateAndExecuteMatchRun is the synchronous API path: create, then
// execute in the same request.
func CreateAndExecuteMatchRun(ctx context.Context, businessDate, scopeFilter string) (*models.MatchRun, error) {
	run, err := CreateMatchRun(ctx, businessDate, scopeFilter)
	if err != nil {
		return nil, err
	}
	executed, err := ExecuteMatchRun(ctx, run.ID)
	if err != nil {
		// The run row survives in FAILED state for inspection.
		if failed, getErr := models.GetRun(ctx, run.ID); getErr == nil {
			return failed, err
		}
		return nil, err
	}
	return executed, nil
}
