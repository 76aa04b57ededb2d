package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/matching"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const activeRulesetCacheKey = "MatchRuleset:active"

// MatchRuleset is a versioned tolerance set. Exactly one row is active;
// the matcher never reads configuration elsewhere.
type MatchRuleset struct {
	Version            string          `gorm:"primaryKey;size:32" json:"version"`
	IsActive           bool            `gorm:"not null;index" json:"is_active"`
	AmountTolerance    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount_tolerance"`
	DateWindowDays     int             `gorm:"not null" json:"date_window_days"`
	ScoreThreshold     float64         `gorm:"not null" json:"score_threshold"`
	MaxGroupSize       int             `gorm:"not null" json:"max_group_size"`
	HighValueThreshold decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"high_value_threshold"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (r *MatchRuleset) ToMatchingRuleset() matching.Ruleset {
	return matching.Ruleset{
		Version:            r.Version,
		AmountTolerance:    r.AmountTolerance,
		DateWindowDays:     r.DateWindowDays,
		ScoreThreshold:     r.ScoreThreshold,
		MaxGroupSize:       r.MaxGroupSize,
		HighValueThreshold: r.HighValueThreshold,
	}
}

func defaultRuleset() MatchRuleset {
	return MatchRuleset{
		Version:            "v1",
		IsActive:           true,
		AmountTolerance:    decimal.NewFromFloat(2.0),
		DateWindowDays:     1,
		ScoreThreshold:     0.75,
		MaxGroupSize:       3,
		HighValueThreshold: decimal.NewFromInt(10000),
	}
}

// EnsureDefaultRuleset seeds v1 when no active ruleset exists yet.
func EnsureDefaultRuleset(ctx context.Context) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&MatchRuleset{}).Where("is_active = 1").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	seed := defaultRuleset()
	return db.WithContext(ctx).Create(&seed).Error
}

// ActiveRuleset returns the active ruleset, redis-cached. A nil redis
// client degrades to a plain DB read.
func ActiveRuleset(ctx context.Context, tx *gorm.DB) (*MatchRuleset, error) {
	var cached MatchRuleset
	if found, err := config.GetRedisObject(activeRulesetCacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	var ruleset MatchRuleset
	if err := tx.WithContext(ctx).Where("is_active = 1").First(&ruleset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrKindValidation, "no active ruleset")
		}
		return nil, err
	}
	_ = config.SetRedisObject(activeRulesetCacheKey, &ruleset, utils.GetCacheLifespan())
	return &ruleset, nil
}

func ListRulesets(ctx context.Context) ([]MatchRuleset, error) {
	db := config.GetDB()
	var rulesets []MatchRuleset
	if err := db.WithContext(ctx).Order("created_at DESC, version DESC").Find(&rulesets).Error; err != nil {
		return nil, err
	}
	return rulesets, nil
}

// ActivateRuleset inserts a new version and deactivates the rest in one
// transaction, then drops the cache entry.
func ActivateRuleset(ctx context.Context, ruleset MatchRuleset) error {
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&MatchRuleset{}).Where("is_active = 1").Update("is_active", false).Error; err != nil {
			return err
		}
		ruleset.IsActive = true
		return tx.Save(&ruleset).Error
	})
	if err != nil {
		return err
	}
	return config.RemoveRedisKey(activeRulesetCacheKey)
}
