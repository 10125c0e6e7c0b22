package models

import "time"

// Kind names a persisted entity type.
type Kind string

const (
	KindParcel         Kind = "parcel"
	KindSIA            Kind = "sia"
	KindNotification   Kind = "notification"
	KindObjection      Kind = "objection"
	KindValuation      Kind = "valuation"
	KindAward          Kind = "award"
	KindScheme         Kind = "scheme"
	KindProperty       Kind = "property"
	KindApplication    Kind = "application"
	KindDraw           Kind = "draw"
	KindServiceRequest Kind = "service_request"
)

// Kinds lists every persisted entity type.
var Kinds = []Kind{
	KindParcel, KindSIA, KindNotification, KindObjection, KindValuation, KindAward,
	KindScheme, KindProperty, KindApplication, KindDraw, KindServiceRequest,
}

// Valid reports whether k is a known entity type.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Entity is implemented by every persisted aggregate.
type Entity interface {
	EntityKind() Kind
	EntityID() string
	// ParentID groups child records (objections under a notification,
	// applications under a scheme). Empty for roots.
	ParentID() string
	StatusValue() string
	Revision() int
	SetRevision(v int)
}

// Role is the acting role supplied by the identity provider.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleCaseOfficer      Role = "case_officer"
	RoleLandOfficer      Role = "land_officer"
	RoleValuationOfficer Role = "valuation_officer"
	RoleSchemeOfficer    Role = "scheme_officer"
	RoleCitizen          Role = "citizen"
)

// Roles lists every role the identity provider may supply.
var Roles = []Role{RoleAdmin, RoleCaseOfficer, RoleLandOfficer, RoleValuationOfficer, RoleSchemeOfficer, RoleCitizen}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Actor identifies who performs an action.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// StatusChange is one append-only history entry.
type StatusChange struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Action string    `json:"action"`
	Actor  Actor     `json:"actor"`
	At     time.Time `json:"at"`
}

// Base holds the fields every entity shares.
type Base struct {
	ID        string         `json:"id"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	History   []StatusChange `json:"history,omitempty"`
}

func newBase(id string, now time.Time) Base {
	return Base{ID: id, CreatedAt: now, UpdatedAt: now}
}

func (b *Base) EntityID() string  { return b.ID }
func (b *Base) Revision() int     { return b.Version }
func (b *Base) SetRevision(v int) { b.Version = v }

func (b *Base) record(from, to, action string, actor Actor, now time.Time) {
	b.History = append(b.History, StatusChange{From: from, To: to, Action: action, Actor: actor, At: now})
	b.UpdatedAt = now
}

// AuditEntry is an append-only record of a committed action.
type AuditEntry struct {
	ID         string            `json:"id"`
	EntityKind Kind              `json:"entityKind"`
	EntityID   string            `json:"entityId"`
	Action     string            `json:"action"`
	Actor      Actor             `json:"actor"`
	From       string            `json:"from,omitempty"`
	To         string            `json:"to,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}
