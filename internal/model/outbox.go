package model

import (
	"time"

	"github.com/google/uuid"
)

type OutboxAction string

const (
	ActionUpsert OutboxAction = "upsert"
	ActionDelete OutboxAction = "delete"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxPending, OutboxProcessing, OutboxCompleted, OutboxFailed:
		return true
	}

	return false
}

type OutboxItem struct {
	ID          uuid.UUID    `db:"id"           json:"id"`
	EntityType  string       `db:"entity_type"  json:"entityType"`
	EntityID    uuid.UUID    `db:"entity_id"    json:"entityId"`
	Action      OutboxAction `db:"action"       json:"action"`
	Payload     []byte       `db:"payload"      json:"payload"`
	Status      OutboxStatus `db:"status"       json:"status"`
	Attempts    int          `db:"attempts"     json:"attempts"`
	LastError   *string      `db:"last_error"   json:"lastError,omitempty"`
	CreatedAt   time.Time    `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at"   json:"updatedAt"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processedAt,omitempty"`
}

type OutboxQueryParams struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}
