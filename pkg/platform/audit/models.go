package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require durable storage and long retention.
	// Examples: consent grants, revocations, record expiry.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: consent checks, banner evaluations, storage degradation.
	CategoryOperations EventCategory = "operations"
)

// Action identifies what happened. New actions must be added to
// actionCategories or they default to CategoryOperations.
type Action string

const (
	ActionConsentSet      Action = "consent_set"
	ActionConsentRevoked  Action = "consent_revoked"
	ActionConsentChecked  Action = "consent_checked"
	ActionBannerEvaluated Action = "banner_evaluated"
	ActionRecordExpired   Action = "record_expired"

	// Storage health transitions. Emitted once per transition, not per
	// failed operation.
	ActionStorageFallback  Action = "storage_fallback"
	ActionStorageRecovered Action = "storage_recovered"
)

// actionCategories maps each action to its category.
// Compliance: legal/regulatory significance, long retention required.
// Operations: debugging, operational visibility, can be sampled.
var actionCategories = map[Action]EventCategory{
	ActionConsentSet:     CategoryCompliance,
	ActionConsentRevoked: CategoryCompliance,
	ActionRecordExpired:  CategoryCompliance,

	ActionConsentChecked:   CategoryOperations,
	ActionBannerEvaluated:  CategoryOperations,
	ActionStorageFallback:  CategoryOperations,
	ActionStorageRecovered: CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Decision values recorded on check and banner events.
const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
	DecisionShow    = "show"
	DecisionSkip    = "skip"
)

// Event is emitted from consent operations to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// SubjectID must already be pseudonymized by the caller when a
// pseudonymization key is configured; stores never see raw identifiers in
// that case.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	SubjectID string        `json:"subject_id,omitempty"`
	RecordID  string        `json:"record_id,omitempty"`
	Purposes  []string      `json:"purposes,omitempty"`
	Decision  string        `json:"decision,omitempty"`
	// Driver names the storage backend involved in storage health events.
	Driver string `json:"driver,omitempty"`
	// RequestID is the correlation ID from the request context, if any.
	RequestID string `json:"request_id,omitempty"`
	// UserAgent is the client software string captured at the edge.
	UserAgent string `json:"user_agent,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
