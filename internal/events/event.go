package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/landflow/internal/models"
)

// Type names a domain event. Delivery collaborators subscribe by type.
type Type string

const (
	SIAPublished            Type = "SIAPublished"
	HearingScheduled        Type = "HearingScheduled"
	HearingCompleted        Type = "HearingCompleted"
	SIAReportGenerated      Type = "SIAReportGenerated"
	SIAClosed               Type = "SIAClosed"
	NotificationPublished   Type = "NotificationPublished"
	ObjectionWindowOpened   Type = "ObjectionWindowOpened"
	ObjectionWindowClosed   Type = "ObjectionWindowClosed"
	NotificationArchived    Type = "NotificationArchived"
	ObjectionSubmitted      Type = "ObjectionSubmitted"
	ObjectionResolved       Type = "ObjectionResolved"
	ValuationComputed       Type = "ValuationComputed"
	AwardDrafted            Type = "AwardDrafted"
	AwardApproved           Type = "AwardApproved"
	AwardDisbursed          Type = "AwardDisbursed"
	AwardVoided             Type = "AwardVoided"
	SchemePublished         Type = "SchemePublished"
	SchemeClosed            Type = "SchemeClosed"
	ApplicationSubmitted    Type = "ApplicationSubmitted"
	ApplicationVerified     Type = "ApplicationVerified"
	ApplicationRejected     Type = "ApplicationRejected"
	DrawConducted           Type = "DrawConducted"
	DrawReset               Type = "DrawReset"
	ServiceRequestSubmitted Type = "ServiceRequestSubmitted"
	ServiceRequestResolved  Type = "ServiceRequestResolved"
	ParcelPossessed         Type = "ParcelPossessed"
)

// Event is a committed domain fact.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	EntityKind models.Kind       `json:"entityKind"`
	EntityID   string            `json:"entityId"`
	Actor      models.Actor      `json:"actor"`
	At         time.Time         `json:"at"`
	Data       map[string]string `json:"data,omitempty"`
}

// New builds an event about entity e.
func New(typ Type, e models.Entity, actor models.Actor, at time.Time, data map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityKind: e.EntityKind(),
		EntityID:   e.EntityID(),
		Actor:      actor,
		At:         at,
		Data:       data,
	}
}

// Publisher accepts events after their transaction has committed.
// Implementations must not block the caller on delivery.
type Publisher interface {
	Publish(events ...Event)
}
