package model

const (
	HealthUp       = "up"
	HealthDown     = "down"
	HealthDegraded = "degraded"
)

// HealthReport is the readiness view of the service. Status is down when a
// required component fails and degraded when only an optional one does.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Outbox     map[string]int64  `json:"outbox,omitempty"`
}
