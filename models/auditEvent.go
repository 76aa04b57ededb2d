package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is the immutable trail of every state-changing operation and
// every denied attempt. Events are inserted once; there is no update or
// delete path anywhere in the code.
type AuditEvent struct {
	ID            string      `gorm:"primaryKey;size:36" json:"event_id"`
	OccurredAt    time.Time   `gorm:"not null;index:idx_audit_time" json:"occurred_at"`
	ActorLogin    string      `gorm:"size:64;not null;index" json:"actor_login"`
	Action        string      `gorm:"size:64;not null;index" json:"action"`
	EntityType    string      `gorm:"size:32;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityId      string      `gorm:"size:64;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Result        AuditResult `gorm:"type:enum('SUCCESS','DUPLICATE','FAILURE');not null" json:"result"`
	SourceIp      string      `gorm:"size:45" json:"source_ip"`
	CorrelationId string      `gorm:"size:36;index" json:"correlation_id"`
	DetailRaw     []byte      `gorm:"type:blob" json:"-"`
}

func (e *AuditEvent) Detail() map[string]interface{} {
	out := map[string]interface{}{}
	if len(e.DetailRaw) > 0 {
		_ = json.Unmarshal(e.DetailRaw, &out)
	}
	return out
}

// AppendAudit writes one event inside the caller's transaction so the
// trail commits or rolls back together with the change it describes.
// Denied attempts are written outside any business transaction with
// result FAILURE.
func AppendAudit(ctx context.Context, tx *gorm.DB, action, entityType, entityId string, result AuditResult, detail map[string]interface{}) error {
	actor, _ := utils.GetActorLoginFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	sourceIp, _ := utils.GetSourceIpFromContext(ctx)
	event := AuditEvent{
		ID:            uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		ActorLogin:    actor,
		Action:        action,
		EntityType:    entityType,
		EntityId:      entityId,
		Result:        result,
		SourceIp:      sourceIp,
		CorrelationId: utils.CorrelationIdFromContextOrNew(ctx),
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		event.DetailRaw = raw
	}
	return tx.WithContext(ctx).Create(&event).Error
}

// AuditFilter narrows the trail by time window, actor, action or entity.
type AuditFilter struct {
	From       *time.Time
	To         *time.Time
	ActorLogin string
	Action     string
	EntityType string
	EntityId   string
	Page       int
	PageSize   int
}

type AuditPage struct {
	Items      []AuditEvent `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	Total      int64        `json:"total"`
	TotalPages int64        `json:"total_pages"`
}

func QueryAuditEvents(ctx context.Context, filter AuditFilter) (*AuditPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	if filter.PageSize > 500 {
		filter.PageSize = 500
	}
	q := config.GetDB().WithContext(ctx).Model(&AuditEvent{})
	if filter.From != nil {
		q = q.Where("occurred_at >= ?", filter.From)
	}
	if filter.To != nil {
		q = q.Where("occurred_at < ?", filter.To)
	}
	if filter.ActorLogin != "" {
		q = q.Where("actor_login = ?", filter.ActorLogin)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityId != "" {
		q = q.Where("entity_id = ?", filter.EntityId)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []AuditEvent
	err := q.Order("occurred_at DESC, id DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &AuditPage{
		Items:      items,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		Total:      total,
		TotalPages: (total + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	}, nil
}
