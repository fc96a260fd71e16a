package model

import "github.com/google/uuid"

type DispatchError struct {
	ItemID uuid.UUID `json:"itemId"`
	Error  string    `json:"error"`
}

type DispatchResult struct {
	Success   bool            `json:"success"`
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Errors    []DispatchError `json:"errors"`
}

// PushOutcome says what a single push did to the external record.
type PushOutcome string

const (
	PushCreated  PushOutcome = "created"
	PushUpdated  PushOutcome = "updated"
	PushDeleted  PushOutcome = "deleted"
	PushUpToDate PushOutcome = "up_to_date"
)

type PushResult struct {
	Outcome          PushOutcome
	ExternalRecordID string
	SyncVersion      int64
}
