package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"bitbucket.org/mmdatafocus/recon_backend/workflow"
	"github.com/google/uuid"
)

var demoUsers = []struct {
	login, name, password, roles string
}{
	{"admin", "Administrator", "admin123", "admin"},
	{"ops1", "Operator L1", "ops1pass", "operator_l1"},
	{"ops2", "Operator L2", "ops2pass", "operator_l2"},
	{"audit", "Auditor", "auditpass", "auditor"},
	{"finance", "Finance Viewer", "financepass", "finance_viewer"},
}

func seedUsers(ctx context.Context) error {
	db := config.GetDB()
	for _, u := range demoUsers {
		var count int64
		if err := db.WithContext(ctx).Model(&models.User{}).Where("login = ?", u.login).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		hash, err := utils.HashPassword(u.password)
		if err != nil {
			return err
		}
		user := models.User{
			ID:           uuid.NewString(),
			Login:        u.login,
			DisplayName:  u.name,
			PasswordHash: string(hash),
			Roles:        u.roles,
			Status:       models.UserStatusActive,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		fmt.Println("created user", u.login)
	}
	return nil
}

// demoRecords fabricates a small day of traffic with deliberate gaps: one
// ledger record the settlement feed misses, one amount drift inside
// tolerance and one settlement with no ledger counterpart.
func demoRecords(businessDate string) (way4, visa []workflow.IngestRecordInput) {
	base := businessDate + "T09:00:00Z"
	later := businessDate + "T15:30:00Z"

	way4 = []workflow.IngestRecordInput{
		{Rrn: "100000000001", Arn: "24000001000000000000001", Pan: "4111111111111111", Amount: "120.00", Currency: "USD", TxnTime: base, OpType: "PURCHASE", Status: "POSTED", MerchantId: "M-1001"},
		{Rrn: "100000000002", Arn: "24000001000000000000002", Pan: "4111111111111111", Amount: "85.50", Currency: "USD", TxnTime: base, OpType: "PURCHASE", Status: "POSTED", MerchantId: "M-1002"},
		{Rrn: "100000000003", Arn: "24000001000000000000003", Pan: "5555555555554444", Amount: "310.00", Currency: "USD", TxnTime: later, OpType: "REFUND", Status: "POSTED", MerchantId: "M-1003"},
		{Rrn: "100000000004", Arn: "24000001000000000000004", Pan: "4111111111111111", Amount: "55.25", Currency: "EUR", TxnTime: base, OpType: "PURCHASE", Status: "POSTED", MerchantId: "M-1004"},
	}
	visa = []workflow.IngestRecordInput{
		{Rrn: "100000000001", Arn: "24000001000000000000001", Pan: "4111111111111111", Amount: "120.00", Currency: "USD", TxnTime: base, OpType: "CLEARING", Status: "POSTED", MerchantId: "M-1001"},
		{Rrn: "100000000002", Arn: "24000001000000000000002", Pan: "4111111111111111", Amount: "86.75", Currency: "USD", TxnTime: later, OpType: "CLEARING", Status: "POSTED", MerchantId: "M-1002"},
		{Rrn: "100000000009", Arn: "24000001000000000000009", Pan: "5555555555554444", Amount: "42.00", Currency: "USD", TxnTime: later, OpType: "CLEARING", Status: "POSTED", MerchantId: "M-1009"},
		{Rrn: "100000000004", Arn: "24000001000000000000004", Pan: "4111111111111111", Amount: "55.25", Currency: "EUR", TxnTime: base, OpType: "CLEARING", Status: "POSTED", MerchantId: "M-1004"},
	}
	return way4, visa
}

func main() {
	businessDate := flag.String("business-date", time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"), "Business date to seed (YYYY-MM-DD)")
	runMatch := flag.Bool("run", true, "Execute a match run after seeding")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	if err := models.EnsureDefaultRuleset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed ruleset: %v\n", err)
		os.Exit(1)
	}
	if err := seedUsers(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed users: %v\n", err)
		os.Exit(1)
	}

	// Ingest and run as the admin, so audit rows carry a real actor.
	ctx = utils.SetActorLoginInContext(ctx, "admin")
	ctx = utils.SetActorRolesInContext(ctx, []string{"admin"})

	way4, visa := demoRecords(*businessDate)
	for _, feed := range []struct {
		source  string
		file    string
		records []workflow.IngestRecordInput
	}{
		{"WAY4", "way4_demo.csv", way4},
		{"VISA", "visa_demo.csv", visa},
	} {
		result, rowErrors, err := workflow.IngestFeedBatch(ctx, workflow.IngestBatchInput{
			Source:       feed.source,
			BusinessDate: *businessDate,
			FileName:     feed.file,
			Records:      feed.records,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest %s failed: %v %v\n", feed.source, err, rowErrors)
			os.Exit(1)
		}
		if result.Duplicate {
			fmt.Println("batch already loaded for", feed.source)
		} else {
			fmt.Printf("ingested %d records for %s (batch %s)\n", result.Accepted, feed.source, result.Batch.ID)
		}
	}

	if !*runMatch {
		return
	}
	run, err := workflow.CreateAndExecuteMatchRun(ctx, *businessDate, models.ScopeAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "match run failed: %v\n", err)
		os.Exit(1)
	}
	summary, err := models.GetRunSummary(ctx, run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("run %s finished: matched=%d missing_way4=%d missing_visa=%d partial=%d duplicates=%d mismatches=%d\n",
		run.ID, summary.Matched, summary.MissingInWay4, summary.MissingInVisa,
		summary.Partial, summary.Duplicates, summary.Mismatches)
}
