package model

type WebhookNotification struct {
	Base      WebhookRef   `json:"base"`
	Webhook   WebhookRef   `json:"webhook"`
	Event     WebhookEvent `json:"event"`
	Timestamp string       `json:"timestamp"`
}

type WebhookRef struct {
	ID string `json:"id"`
}

type WebhookEvent struct {
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	ChangedTablesByID map[string]ChangedTable `json:"changedTablesById"`
}

type ChangedTable struct {
	ChangedRecordsByID map[string]ChangedRecord `json:"changedRecordsById"`
}

type ChangedRecord struct {
	Current  RecordSnapshot  `json:"current"`
	Previous *RecordSnapshot `json:"previous,omitempty"`
}

type RecordSnapshot struct {
	ID     string         `json:"id,omitempty"`
	Fields ExternalFields `json:"fields"`
}

// ExternalFields is a flat CRM record, keyed by external column name.
type ExternalFields map[string]any

type RecordOutcomeStatus string

const (
	RecordUpdated RecordOutcomeStatus = "updated"
	RecordSkipped RecordOutcomeStatus = "skipped"
	RecordError   RecordOutcomeStatus = "error"
)

type RecordOutcome struct {
	RecordID string              `json:"recordId"`
	Status   RecordOutcomeStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
}

type WebhookResult struct {
	Success   bool            `json:"success"`
	Processed int             `json:"processed"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Results   []RecordOutcome `json:"results"`
}
