package models

import (
	"strings"
	"time"
)

// ApplicationStatus is the lifecycle of a scheme application.
type ApplicationStatus string

const (
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationVerified  ApplicationStatus = "verified"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationSelected  ApplicationStatus = "selected"
)

// ApplicationAction names an operation on an application.
type ApplicationAction string

const (
	ApplicationActionVerify ApplicationAction = "verify"
	ApplicationActionReject ApplicationAction = "reject"
	ApplicationActionSelect ApplicationAction = "select"
	ApplicationActionReset  ApplicationAction = "reset_draw"
)

var applicationMachine = machine[ApplicationStatus, ApplicationAction]{
	entity: string(KindApplication),
	rules: map[ApplicationAction]rule[ApplicationStatus]{
		ApplicationActionVerify: {from: []ApplicationStatus{ApplicationSubmitted}, to: ApplicationVerified},
		ApplicationActionReject: {from: []ApplicationStatus{ApplicationSubmitted}, to: ApplicationRejected},
		ApplicationActionSelect: {from: []ApplicationStatus{ApplicationVerified}, to: ApplicationSelected},
		ApplicationActionReset:  {from: []ApplicationStatus{ApplicationSelected}, to: ApplicationVerified},
	},
}

// Application is a party's application to a scheme.
type Application struct {
	Base
	SchemeID      string            `json:"schemeId"`
	PartyID       string            `json:"partyId"`
	ApplicantName string            `json:"applicantName"`
	Category      string            `json:"category,omitempty"`
	AnnualIncome  float64           `json:"annualIncome"`
	Score         *float64          `json:"score,omitempty"`
	Status        ApplicationStatus `json:"status"`
	DrawSeq       *int              `json:"drawSeq,omitempty"`
	DrawID        string            `json:"drawId,omitempty"`
	PropertyID    string            `json:"propertyId,omitempty"`
	RejectReason  string            `json:"rejectReason,omitempty"`
}

func (a *Application) EntityKind() Kind    { return KindApplication }
func (a *Application) ParentID() string    { return a.SchemeID }
func (a *Application) StatusValue() string { return string(a.Status) }

// NewApplication files a submitted application.
func NewApplication(id, schemeID, partyID, name, category string, income float64, score *float64, now time.Time) (*Application, error) {
	if strings.TrimSpace(partyID) == "" {
		return nil, Invalid("partyId", "is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, Invalid("applicantName", "is required")
	}
	if income < 0 {
		return nil, Invalid("annualIncome", "must not be negative")
	}
	return &Application{
		Base:          newBase(id, now),
		SchemeID:      schemeID,
		PartyID:       strings.TrimSpace(partyID),
		ApplicantName: strings.TrimSpace(name),
		Category:      strings.TrimSpace(category),
		AnnualIncome:  income,
		Score:         score,
		Status:        ApplicationSubmitted,
	}, nil
}

func (a *Application) apply(action ApplicationAction, actor Actor, now time.Time) error {
	to, err := applicationMachine.next(a.ID, a.Status, action)
	if err != nil {
		return err
	}
	from := a.Status
	a.Status = to
	a.record(string(from), string(to), string(action), actor, now)
	return nil
}

// Verify marks the application draw-eligible after checking the scheme rules.
func (a *Application) Verify(rules Eligibility, actor Actor, now time.Time) error {
	if err := applicationMachine.check(a.ID, a.Status, ApplicationActionVerify); err != nil {
		return err
	}
	if err := rules.Check(a); err != nil {
		return err
	}
	return a.apply(ApplicationActionVerify, actor, now)
}

// Reject refuses the application.
func (a *Application) Reject(reason string, actor Actor, now time.Time) error {
	if err := applicationMachine.check(a.ID, a.Status, ApplicationActionReject); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return Invalid("reason", "is required")
	}
	if err := a.apply(ApplicationActionReject, actor, now); err != nil {
		return err
	}
	a.RejectReason = strings.TrimSpace(reason)
	return nil
}

// Select records the draw position. A position is assigned at most once.
func (a *Application) Select(seq int, drawID string, actor Actor, now time.Time) error {
	if a.DrawSeq != nil {
		return &TransitionError{
			Entity: string(KindApplication),
			ID:     a.ID,
			From:   string(a.Status),
			Action: string(ApplicationActionSelect),
			Reason: "draw sequence already assigned",
		}
	}
	if seq < 1 {
		return Invalid("drawSeq", "must be 1 or greater")
	}
	if err := a.apply(ApplicationActionSelect, actor, now); err != nil {
		return err
	}
	a.DrawSeq = &seq
	a.DrawID = drawID
	return nil
}

// ResetDraw returns a selected application to verified after an
// administrative draw reset.
func (a *Application) ResetDraw(actor Actor, now time.Time) error {
	if err := a.apply(ApplicationActionReset, actor, now); err != nil {
		return err
	}
	a.DrawSeq = nil
	a.DrawID = ""
	a.PropertyID = ""
	return nil
}
