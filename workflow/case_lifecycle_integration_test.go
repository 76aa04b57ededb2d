package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/google/uuid"
)

func TestCaseLifecycleAgainstDatabase(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "recon_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	ctx := utils.SetActorLoginInContext(context.Background(), "ops2")
	ctx = utils.SetActorRolesInContext(ctx, []string{"operator_l2"})
	ctx = utils.SetSourceIpInContext(ctx, "127.0.0.1")

	for _, u := range []models.User{
		{ID: uuid.NewString(), Login: "ops2", DisplayName: "Ops Two", PasswordHash: "x", Roles: "operator_l2", Status: models.UserStatusActive},
		{ID: uuid.NewString(), Login: "analyst1", DisplayName: "Analyst One", PasswordHash: "x", Roles: "operator_l1", Status: models.UserStatusActive},
	} {
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			t.Fatalf("create user %s: %v", u.Login, err)
		}
	}

	newCase := func(title string) string {
		c := models.ExceptionCase{
			ID:           uuid.NewString(),
			RunId:        uuid.NewString(),
			ResultRowId:  uuid.NewString(),
			BusinessDate: "2026-08-30",
			Category:     models.CategoryAmountMismatch,
			Severity:     models.SeverityMedium,
			Status:       models.CaseStatusNew,
			Rrn:          "700012345678",
			Currency:     "KZT",
			Title:        title,
		}
		if err := db.WithContext(ctx).Create(&c).Error; err != nil {
			t.Fatalf("create case: %v", err)
		}
		return c.ID
	}

	caseId := newCase("amount differs by 1.25 KZT")

	// Assigning a NEW case advances it to TRIAGED in the same statement.
	assigned, err := workflow.AssignCase(ctx, caseId, "analyst1")
	if err != nil {
		t.Fatalf("AssignCase: %v", err)
	}
	if assigned.Status != models.CaseStatusTriaged {
		t.Fatalf("expected TRIAGED after assigning a NEW case, got %s", assigned.Status)
	}
	if assigned.AssignedTo == nil || *assigned.AssignedTo != "analyst1" {
		t.Fatalf("expected assignee analyst1, got %v", assigned.AssignedTo)
	}

	history, err := workflow.GetCaseWithHistory(ctx, caseId)
	if err != nil {
		t.Fatalf("GetCaseWithHistory: %v", err)
	}
	if len(history.Actions) != 1 || history.Actions[0].ActionType != models.ActionAssign {
		t.Fatalf("expected a single ASSIGN action, got %+v", history.Actions)
	}
	act := history.Actions[0]
	if act.FromStatus == nil || *act.FromStatus != models.CaseStatusNew ||
		act.ToStatus == nil || *act.ToStatus != models.CaseStatusTriaged {
		t.Fatalf("assign action must record NEW to TRIAGED, got %+v", act)
	}

	audit, err := models.QueryAuditEvents(ctx, models.AuditFilter{Action: "EXCEPTION_ASSIGN", EntityId: caseId})
	if err != nil {
		t.Fatalf("QueryAuditEvents: %v", err)
	}
	if audit.Total != 1 || audit.Items[0].ActorLogin != "ops2" {
		t.Fatalf("expected one EXCEPTION_ASSIGN event by ops2, got %+v", audit.Items)
	}

	if _, err := workflow.ChangeCaseStatus(ctx, caseId, "IN_PROGRESS"); err != nil {
		t.Fatalf("ChangeCaseStatus to IN_PROGRESS: %v", err)
	}

	// A stale precondition must surface as CONFLICT, not silently update.
	err = models.UpdateCaseStatus(ctx, db, caseId, models.CaseStatusNew, models.CaseStatusTriaged, nil)
	if !utils.IsKind(err, utils.ErrKindConflict) {
		t.Fatalf("expected CONFLICT for a stale status precondition, got %v", err)
	}

	closed, err := workflow.CloseCase(ctx, caseId, "fee difference accepted")
	if err != nil {
		t.Fatalf("CloseCase: %v", err)
	}
	if closed.Status != models.CaseStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected a CLOSED case with a close timestamp, got %+v", closed)
	}
	if closed.Resolution == nil || *closed.Resolution != "fee difference accepted" {
		t.Fatalf("expected the resolution to be stored, got %v", closed.Resolution)
	}

	// CLOSED is terminal for every mutation.
	if _, err := workflow.ChangeCaseStatus(ctx, caseId, "TRIAGED"); !utils.IsKind(err, utils.ErrKindInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION on status change of a closed case, got %v", err)
	}
	if _, err := workflow.AssignCase(ctx, caseId, "analyst1"); !utils.IsKind(err, utils.ErrKindInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION on reassigning a closed case, got %v", err)
	}
	if _, err := workflow.CommentCase(ctx, caseId, "too late"); !utils.IsKind(err, utils.ErrKindInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION on commenting a closed case, got %v", err)
	}

	// Closing never rides on the status-change operation.
	otherId := newCase("duplicate candidates on shared rrn")
	if _, err := workflow.ChangeCaseStatus(ctx, otherId, "CLOSED"); !utils.IsKind(err, utils.ErrKindInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION when closing via status change, got %v", err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("recon-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=recon_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
