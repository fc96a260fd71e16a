package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncMetadata records what is currently reflected in the external CRM for
// one entity.
type SyncMetadata struct {
	EntityType       string    `db:"entity_type"        json:"entityType"`
	EntityID         uuid.UUID `db:"entity_id"          json:"entityId"`
	ExternalRecordID string    `db:"external_record_id" json:"externalRecordId"`
	LastSyncedAt     time.Time `db:"last_synced_at"     json:"lastSyncedAt"`
	SyncVersion      int64     `db:"sync_version"       json:"syncVersion"`
	CreatedAt        time.Time `db:"created_at"         json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at"         json:"updatedAt"`
}

// Covers reports whether the external record already holds the given version.
func (m *SyncMetadata) Covers(version int64) bool {
	return m != nil && m.ExternalRecordID != "" && m.SyncVersion >= version
}

// MentorStats are computed, read-only figures pushed alongside the profile.
type MentorStats struct {
	UtilizationPct *float64 `json:"utilizationPct,omitempty"`
	AvgFeedback    *float64 `json:"avgFeedback,omitempty"`
}

// SyncStatus is the operator view of one mentor: local version, what the
// metadata says was last reflected, and what the CRM record holds now.
type SyncStatus struct {
	MentorID         uuid.UUID      `json:"mentorId"`
	LocalVersion     int64          `json:"localVersion"`
	SyncedVersion    int64          `json:"syncedVersion"`
	LastSyncedAt     *time.Time     `json:"lastSyncedAt,omitempty"`
	ExternalRecordID string         `json:"externalRecordId,omitempty"`
	UpToDate         bool           `json:"upToDate"`
	RemoteFound      bool           `json:"remoteFound"`
	RemoteFields     ExternalFields `json:"remoteFields,omitempty"`
	// DriftFields lists allow-listed columns whose CRM value differs from
	// what the current local profile would push.
	DriftFields []string `json:"driftFields"`
}
