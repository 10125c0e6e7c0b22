package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Attachment limits for a single objection.
const (
	MaxObjectionAttachments = 3
	MaxAttachmentBytes      = 25 << 20
)

// ObjectionStatus is the lifecycle of a citizen objection.
type ObjectionStatus string

const (
	ObjectionSubmitted   ObjectionStatus = "submitted"
	ObjectionUnderReview ObjectionStatus = "under_review"
	ObjectionResolved    ObjectionStatus = "resolved"
	ObjectionRejected    ObjectionStatus = "rejected"
)

// ObjectionAction names an operation on an objection.
type ObjectionAction string

const (
	ObjectionActionReview  ObjectionAction = "review"
	ObjectionActionResolve ObjectionAction = "resolve"
	ObjectionActionReject  ObjectionAction = "reject"
)

var objectionMachine = machine[ObjectionStatus, ObjectionAction]{
	entity: string(KindObjection),
	rules: map[ObjectionAction]rule[ObjectionStatus]{
		ObjectionActionReview:  {from: []ObjectionStatus{ObjectionSubmitted}, to: ObjectionUnderReview},
		ObjectionActionResolve: {from: []ObjectionStatus{ObjectionSubmitted, ObjectionUnderReview}, to: ObjectionResolved},
		ObjectionActionReject:  {from: []ObjectionStatus{ObjectionSubmitted, ObjectionUnderReview}, to: ObjectionRejected},
	},
}

// Submitter identifies the citizen filing an objection.
type Submitter struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,numeric,min=10,max=15"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Aadhaar string `json:"aadhaar,omitempty" validate:"omitempty,numeric,len=12"`
}

// Attachment is an opaque reference to an uploaded file.
type Attachment struct {
	Ref       string `json:"ref" validate:"required"`
	SizeBytes int64  `json:"sizeBytes" validate:"gt=0"`
}

// Objection is a citizen objection against a parcel in a sec11 notice.
type Objection struct {
	Base
	NotificationID string          `json:"notificationId"`
	ParcelID       string          `json:"parcelId"`
	Submitter      Submitter       `json:"submitter"`
	Text           string          `json:"text"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Status         ObjectionStatus `json:"status"`
	Resolution     string          `json:"resolution,omitempty"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
}

func (o *Objection) EntityKind() Kind    { return KindObjection }
func (o *Objection) ParentID() string    { return o.NotificationID }
func (o *Objection) StatusValue() string { return string(o.Status) }

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldError converts the first validator failure into a *ValidationError.
func fieldError(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return Invalid(prefix+strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return Invalid(prefix, err.Error())
}

// NewObjection validates and creates a submitted objection. Window and
// membership checks belong to the notification and are done by the caller.
func NewObjection(id, notificationID, parcelID string, submitter Submitter, text string, attachments []Attachment, now time.Time) (*Objection, error) {
	if err := validate.Struct(submitter); err != nil {
		return nil, fieldError("submitter.", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, Invalid("text", "is required")
	}
	if len(attachments) > MaxObjectionAttachments {
		return nil, Invalid("attachments", "at most 3 attachments are allowed")
	}
	for _, a := range attachments {
		if err := validate.Struct(a); err != nil {
			return nil, fieldError("attachments.", err)
		}
		if a.SizeBytes > MaxAttachmentBytes {
			return nil, Invalid("attachments.sizebytes", "each attachment must be 25MB or smaller")
		}
	}
	return &Objection{
		Base:           newBase(id, now),
		NotificationID: notificationID,
		ParcelID:       parcelID,
		Submitter:      submitter,
		Text:           strings.TrimSpace(text),
		Attachments:    attachments,
		Status:         ObjectionSubmitted,
	}, nil
}

func (o *Objection) apply(action ObjectionAction, actor Actor, now time.Time) error {
	to, err := objectionMachine.next(o.ID, o.Status, action)
	if err != nil {
		return err
	}
	from := o.Status
	o.Status = to
	o.record(string(from), string(to), string(action), actor, now)
	return nil
}

// Review marks the objection as taken up by staff.
func (o *Objection) Review(actor Actor, now time.Time) error {
	return o.apply(ObjectionActionReview, actor, now)
}

// Resolve closes the objection with outcome resolved or rejected. This stays
// legal after the parent notification's window has closed.
func (o *Objection) Resolve(outcome ObjectionStatus, text string, actor Actor, now time.Time) error {
	var action ObjectionAction
	switch outcome {
	case ObjectionResolved:
		action = ObjectionActionResolve
	case ObjectionRejected:
		action = ObjectionActionReject
	default:
		return Invalid("status", "must be resolved or rejected")
	}
	if err := objectionMachine.check(o.ID, o.Status, action); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return Invalid("resolution", "is required")
	}
	if err := o.apply(action, actor, now); err != nil {
		return err
	}
	o.Resolution = strings.TrimSpace(text)
	o.ResolvedAt = &now
	return nil
}
