package model

import (
	"time"

	"github.com/google/uuid"
)

type SyncEventType string

const (
	EventMentorPushed  SyncEventType = "mentor.pushed"
	EventMentorPulled  SyncEventType = "mentor.pulled"
	EventMentorRemoved SyncEventType = "mentor.removed"
)

type SyncEvent struct {
	Type             SyncEventType `json:"type"`
	MentorID         uuid.UUID     `json:"mentorId"`
	ExternalRecordID string        `json:"externalRecordId"`
	SyncVersion      int64         `json:"syncVersion"`
	OccurredAt       time.Time     `json:"occurredAt"`
}
