package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/stwalsh4118/landflow/internal/sla"
)

// SchemeStatus is the lifecycle of a property scheme.
type SchemeStatus string

const (
	SchemeDraft     SchemeStatus = "draft"
	SchemePublished SchemeStatus = "published"
	SchemeClosed    SchemeStatus = "closed"
)

// SchemeAction names an operation on a scheme.
type SchemeAction string

const (
	SchemeActionPublish SchemeAction = "publish"
	SchemeActionClose   SchemeAction = "close"
)

var schemeMachine = machine[SchemeStatus, SchemeAction]{
	entity: string(KindScheme),
	rules: map[SchemeAction]rule[SchemeStatus]{
		SchemeActionPublish: {from: []SchemeStatus{SchemeDraft}, to: SchemePublished},
		SchemeActionClose:   {from: []SchemeStatus{SchemePublished}, to: SchemeClosed},
	},
}

// Eligibility holds the rules an application must meet to be verified.
// Zero income bounds mean unbounded; an empty category list allows any.
type Eligibility struct {
	MinAnnualIncome float64  `json:"minAnnualIncome,omitempty"`
	MaxAnnualIncome float64  `json:"maxAnnualIncome,omitempty"`
	Categories      []string `json:"categories,omitempty"`
}

// Check evaluates an application against the rules.
func (e Eligibility) Check(app *Application) error {
	if e.MinAnnualIncome > 0 && app.AnnualIncome < e.MinAnnualIncome {
		return Invalid("annualIncome", fmt.Sprintf("below scheme minimum of %.2f", e.MinAnnualIncome))
	}
	if e.MaxAnnualIncome > 0 && app.AnnualIncome > e.MaxAnnualIncome {
		return Invalid("annualIncome", fmt.Sprintf("above scheme maximum of %.2f", e.MaxAnnualIncome))
	}
	if len(e.Categories) > 0 && !slices.Contains(e.Categories, app.Category) {
		return Invalid("category", "not eligible under this scheme")
	}
	return nil
}

// Scheme is a property allotment scheme.
type Scheme struct {
	Base
	Name                string       `json:"name"`
	Eligibility         Eligibility  `json:"eligibility"`
	ApplicationDeadline time.Time    `json:"applicationDeadline"`
	Inventory           []string     `json:"inventory,omitempty"`
	Status              SchemeStatus `json:"status"`
	ActiveDrawID        string       `json:"activeDrawId,omitempty"`
}

func (s *Scheme) EntityKind() Kind    { return KindScheme }
func (s *Scheme) ParentID() string    { return "" }
func (s *Scheme) StatusValue() string { return string(s.Status) }

// NewScheme drafts a scheme.
func NewScheme(id, name string, rules Eligibility, deadline time.Time, inventory []string, now time.Time) (*Scheme, error) {
	if strings.TrimSpace(name) == "" {
		return nil, Invalid("name", "is required")
	}
	if rules.MaxAnnualIncome > 0 && rules.MinAnnualIncome > rules.MaxAnnualIncome {
		return nil, Invalid("eligibility", "minimum income exceeds maximum income")
	}
	inv := slices.Clone(inventory)
	slices.Sort(inv)
	return &Scheme{
		Base:                newBase(id, now),
		Name:                strings.TrimSpace(name),
		Eligibility:         rules,
		ApplicationDeadline: deadline,
		Inventory:           slices.Compact(inv),
		Status:              SchemeDraft,
	}, nil
}

func (s *Scheme) apply(action SchemeAction, actor Actor, now time.Time) error {
	to, err := schemeMachine.next(s.ID, s.Status, action)
	if err != nil {
		return err
	}
	from := s.Status
	s.Status = to
	s.record(string(from), string(to), string(action), actor, now)
	return nil
}

// Publish opens the scheme for applications.
func (s *Scheme) Publish(actor Actor, now time.Time) error {
	if err := schemeMachine.check(s.ID, s.Status, SchemeActionPublish); err != nil {
		return err
	}
	if sla.Remaining(s.ApplicationDeadline, now) <= 0 {
		return Invalid("applicationDeadline", "must be in the future")
	}
	return s.apply(SchemeActionPublish, actor, now)
}

// Close ends the scheme.
func (s *Scheme) Close(actor Actor, now time.Time) error {
	return s.apply(SchemeActionClose, actor, now)
}

// ApplicationWindow assesses the application deadline. A closed scheme is
// never reported as breached.
func (s *Scheme) ApplicationWindow(now time.Time) sla.Assessment {
	return sla.Assess(s.ApplicationDeadline, now, []SchemeStatus{SchemeClosed}, s.Status)
}

// AcceptingApplications returns nil while applications may be filed.
func (s *Scheme) AcceptingApplications(now time.Time) error {
	if s.Status != SchemePublished {
		return &TransitionError{
			Entity: string(KindApplication),
			From:   string(s.Status),
			Action: "submit",
			Reason: "scheme " + s.ID + " is not open for applications",
		}
	}
	if s.ApplicationWindow(now).Breached {
		return &TransitionError{
			Entity: string(KindApplication),
			From:   string(s.Status),
			Action: "submit",
			Reason: "application deadline of scheme " + s.ID + " has passed",
		}
	}
	return nil
}

// CanDraw checks the scheme-side preconditions of an e-draw.
func (s *Scheme) CanDraw() error {
	if s.Status != SchemePublished {
		return &TransitionError{Entity: string(KindScheme), ID: s.ID, From: string(s.Status), Action: "conduct_draw"}
	}
	if s.ActiveDrawID != "" {
		return fmt.Errorf("%w: scheme %s has draw %s", ErrAlreadyDrawn, s.ID, s.ActiveDrawID)
	}
	return nil
}

// AttachDraw records drawID as the scheme's active draw.
func (s *Scheme) AttachDraw(drawID string, actor Actor, now time.Time) error {
	if err := s.CanDraw(); err != nil {
		return err
	}
	s.ActiveDrawID = drawID
	s.record(string(s.Status), string(s.Status), "conduct_draw", actor, now)
	return nil
}

// DetachDraw clears the active draw after an administrative reset.
func (s *Scheme) DetachDraw(actor Actor, now time.Time) (string, error) {
	if s.ActiveDrawID == "" {
		return "", &TransitionError{
			Entity: string(KindScheme),
			ID:     s.ID,
			From:   string(s.Status),
			Action: "reset_draw",
			Reason: "scheme has no active draw",
		}
	}
	drawID := s.ActiveDrawID
	s.ActiveDrawID = ""
	s.record(string(s.Status), string(s.Status), "reset_draw", actor, now)
	return drawID, nil
}

// Allotment records which application a property went to.
type Allotment struct {
	SchemeID      string    `json:"schemeId"`
	ApplicationID string    `json:"applicationId"`
	DrawID        string    `json:"drawId"`
	At            time.Time `json:"at"`
}

// Property is an inventory item offered through schemes.
type Property struct {
	Base
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
	Allotment   *Allotment `json:"allotment,omitempty"`
}

func (p *Property) EntityKind() Kind { return KindProperty }
func (p *Property) ParentID() string { return "" }

func (p *Property) StatusValue() string {
	if p.Allotment != nil {
		return "allotted"
	}
	return "available"
}

// NewProperty registers an available inventory item.
func NewProperty(id, code, description string, now time.Time) (*Property, error) {
	if strings.TrimSpace(code) == "" {
		return nil, Invalid("code", "is required")
	}
	return &Property{Base: newBase(id, now), Code: strings.TrimSpace(code), Description: description}, nil
}

// AllottedOutside reports whether the property is held by another scheme.
func (p *Property) AllottedOutside(schemeID string) bool {
	return p.Allotment != nil && p.Allotment.SchemeID != schemeID
}

// Allot assigns the property to an application.
func (p *Property) Allot(a Allotment, actor Actor) error {
	if p.Allotment != nil {
		return fmt.Errorf("%w: property %s is allotted to application %s",
			ErrInventoryAllotted, p.ID, p.Allotment.ApplicationID)
	}
	p.Allotment = &a
	p.record("available", "allotted", "allot", actor, a.At)
	return nil
}

// Release frees a property allotted by drawID.
func (p *Property) Release(drawID string, actor Actor, now time.Time) error {
	if p.Allotment == nil || p.Allotment.DrawID != drawID {
		return &TransitionError{Entity: string(KindProperty), ID: p.ID, From: p.StatusValue(), Action: "release"}
	}
	p.Allotment = nil
	p.record("allotted", "available", "release", actor, now)
	return nil
}
