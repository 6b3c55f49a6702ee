package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	EmployeeID uuid.UUID          `json:"employeeId"`
	CompanyID  uuid.UUID          `json:"companyId"`
	Role       enums.EmployeeRole `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
