package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/shopspring/decimal"
)

type CategoryCountRow struct {
	Category models.ExceptionCategory `json:"category"`
	Severity models.Severity          `json:"severity"`
	Count    int64                    `json:"count"`
}

type AgingBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// ReconAnalytics is the dashboard payload for one business date: match
// rate from the latest run, open-case breakdown and how stale the open
// backlog is.
type ReconAnalytics struct {
	BusinessDate   string             `json:"business_date"`
	RunId          string             `json:"run_id,omitempty"`
	RunStatus      string             `json:"run_status,omitempty"`
	MatchRate      *float64           `json:"match_rate"`
	TotalRows      int64              `json:"total_rows"`
	AmountVariance decimal.Decimal    `json:"amount_variance"`
	OpenCases      []CategoryCountRow `json:"open_cases"`
	CaseAging      []AgingBucket      `json:"case_aging"`
}

// GetReconAnalytics computes the date's dashboard from its latest run. A
// date with no runs yet returns an empty payload rather than NOT_FOUND,
// so the dashboard renders before the first execution.
func GetReconAnalytics(ctx context.Context, businessDate string) (*ReconAnalytics, error) {
	out := &ReconAnalytics{BusinessDate: businessDate, AmountVariance: decimal.Zero}
	db := config.GetDB()

	run, err := models.LatestRunForDate(ctx, businessDate)
	if err != nil && !utils.IsKind(err, utils.ErrKindNotFound) {
		return nil, err
	}
	if err == nil {
		out.RunId = run.ID
		out.RunStatus = string(run.Status)
		summary, err := models.GetRunSummary(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		total := summary.Matched + summary.MissingInWay4 + summary.MissingInVisa +
			summary.Partial + summary.Duplicates + summary.Mismatches
		out.TotalRows = total
		out.AmountVariance = summary.AmountDelta
		if total > 0 {
			rate := float64(summary.Matched) / float64(total)
			out.MatchRate = &rate
		}
	}

	err = db.WithContext(ctx).Model(&models.ExceptionCase{}).
		Select("category, severity, COUNT(*) AS count").
		Where("business_date = ? AND status <> ?", businessDate, models.CaseStatusClosed).
		Group("category, severity").
		Order("count DESC").
		Scan(&out.OpenCases).Error
	if err != nil {
		return nil, err
	}

	out.CaseAging, err = openCaseAging(ctx, businessDate)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// openCaseAging buckets open cases by how long they have sat since
// creation: same day, up to three days, up to a week, older.
func openCaseAging(ctx context.Context, businessDate string) ([]AgingBucket, error) {
	var cases []models.ExceptionCase
	err := config.GetDB().WithContext(ctx).
		Select("created_at").
		Where("business_date = ? AND status <> ?", businessDate, models.CaseStatusClosed).
		Find(&cases).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	counts := map[string]int64{}
	for _, c := range cases {
		age := now.Sub(c.CreatedAt)
		switch {
		case age < 24*time.Hour:
			counts["0-1d"]++
		case age < 72*time.Hour:
			counts["1-3d"]++
		case age < 7*24*time.Hour:
			counts["3-7d"]++
		default:
			counts["7d+"]++
		}
	}

	buckets := []AgingBucket{}
	for _, name := range []string{"0-1d", "1-3d", "3-7d", "7d+"} {
		buckets = append(buckets, AgingBucket{Bucket: name, Count: counts[name]})
	}
	return buckets, nil
}
