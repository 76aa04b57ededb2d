package models

import (
	"log"

	"bitbucket.org/mmdatafocus/recon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&IngestBatch{}, &CanonicalTransaction{},
		&MatchRuleset{},
		&MatchRun{}, &MatchResultRow{}, &MatchResultMember{},
		&ExceptionCase{}, &CaseAction{},
		&AuditEvent{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
