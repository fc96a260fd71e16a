package model

import (
	"time"

	"github.com/google/uuid"
)

const EntityTypeMentor = "mentor"

// MutationOrigin tags every write to a mentor profile with who authored it.
// Only locally authored writes may schedule an outbound push; webhook-applied
// writes already reflect the external state.
type MutationOrigin string

const (
	OriginLocal   MutationOrigin = "local"
	OriginWebhook MutationOrigin = "webhook"
)

func (o MutationOrigin) TriggersOutboundSync() bool {
	return o == OriginLocal
}

func (o MutationOrigin) Valid() bool {
	return o == OriginLocal || o == OriginWebhook
}

type Mentor struct {
	ID                 uuid.UUID      `db:"id"                   json:"id"`
	Headline           *string        `db:"headline"             json:"headline,omitempty"`
	Bio                *string        `db:"bio"                  json:"bio,omitempty"`
	Company            *string        `db:"company"              json:"company,omitempty"`
	Title              *string        `db:"title"                json:"title,omitempty"`
	Industry           *string        `db:"industry"             json:"industry,omitempty"`
	Stage              *string        `db:"stage"                json:"stage,omitempty"`
	Timezone           *string        `db:"timezone"             json:"timezone,omitempty"`
	Expertise          []Expertise    `db:"expertise"            json:"expertise"`
	Active             bool           `db:"active"               json:"active"`
	ExternalRecordID   *string        `db:"external_record_id"   json:"externalRecordId,omitempty"`
	SyncVersion        int64          `db:"sync_version"         json:"syncVersion"`
	LastMutationOrigin MutationOrigin `db:"last_mutation_origin" json:"lastMutationOrigin"`
	CreatedAt          time.Time      `db:"created_at"           json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at"           json:"updatedAt"`
}

// ProfilePatch is a partial profile update. A nil field is left untouched,
// a pointer to an empty string clears the column.
type ProfilePatch struct {
	Headline  *string      `json:"headline,omitempty"`
	Bio       *string      `json:"bio,omitempty"`
	Company   *string      `json:"company,omitempty"`
	Title     *string      `json:"title,omitempty"`
	Industry  *string      `json:"industry,omitempty"`
	Stage     *string      `json:"stage,omitempty"`
	Timezone  *string      `json:"timezone,omitempty"`
	Expertise *[]Expertise `json:"expertise,omitempty"`
	Active    *bool        `json:"active,omitempty"`
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Headline == nil &&
		p.Bio == nil &&
		p.Company == nil &&
		p.Title == nil &&
		p.Industry == nil &&
		p.Stage == nil &&
		p.Timezone == nil &&
		p.Expertise == nil &&
		p.Active == nil
}

// Apply mutates the mentor in memory the same way the repository does in SQL.
// It does not touch the sync version.
func (m *Mentor) Apply(p ProfilePatch) {
	applyString(&m.Headline, p.Headline)
	applyString(&m.Bio, p.Bio)
	applyString(&m.Company, p.Company)
	applyString(&m.Title, p.Title)
	applyString(&m.Industry, p.Industry)
	applyString(&m.Stage, p.Stage)
	applyString(&m.Timezone, p.Timezone)

	if p.Expertise != nil {
		m.Expertise = append([]Expertise(nil), (*p.Expertise)...)
	}

	if p.Active != nil {
		m.Active = *p.Active
	}
}

func applyString(dst **string, v *string) {
	if v == nil {
		return
	}

	if *v == "" {
		*dst = nil
		return
	}

	s := *v
	*dst = &s
}

// MentorUpdateRequest is the body accepted by the profile update endpoint.
type MentorUpdateRequest struct {
	ProfilePatch
}
