package domain

// Category classifies an audit event by the application area it originated from.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryUsers      Category = "users"
	CategorySecurity   Category = "security"
	CategoryTools      Category = "tools"
	CategoryQuotations Category = "quotations"
	CategoryFinance    Category = "finance"
	CategorySystem     Category = "system"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAuth, CategoryUsers, CategorySecurity, CategoryTools,
		CategoryQuotations, CategoryFinance, CategorySystem:
		return true
	}
	return false
}

// AuditEvent is the payload emitted by application code for a
// security-relevant action. It has no identity of its own; the appender
// derives an immutable LogEntry from it.
type AuditEvent struct {
	Action     string         `json:"action"`
	Category   Category       `json:"category"`
	ActorID    *string        `json:"actor_id"`
	TargetID   *string        `json:"target_id"`
	TargetType *string        `json:"target_type"`
	IPAddress  *string        `json:"ip_address"`
	Metadata   map[string]any `json:"metadata"`
}
