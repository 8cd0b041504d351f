package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"openbadges/pkg/requestcontext"
)

type Action string

const (
	ActionIssuerRegistered   Action = "issuer_registered"
	ActionProfileUpdated     Action = "profile_updated"
	ActionAchievementCreated Action = "achievement_created"
	ActionCredentialIssued   Action = "credential_issued"

	ActionRevocationListCreated Action = "revocation_list_created"
	ActionCredentialStatus      Action = "credential_status_changed"
)

// Event records one committed ledger write. It is emitted after the write so
// a failed publish never rolls back issuance.
type Event struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Subject     string    `json:"subject"`
	Actor       string    `json:"actor,omitempty"`
	Issuer      string    `json:"issuer,omitempty"`
	Achievement string    `json:"achievement,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// stamp fills request-scoped fields before the event leaves the request.
func stamp(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		if w := requestcontext.Wallet(ctx); !w.IsZero() {
			event.Actor = w.String()
		}
	}
	return event
}
