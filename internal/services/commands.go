package services

import (
	"time"

	"github.com/stwalsh4118/landflow/internal/models"
)

// Command structs are the inputs of workflow operations. The binding tags
// are evaluated by gin when handlers bind request bodies; the domain
// constructors re-check everything that matters.

// RegisterParcelCmd registers a parcel.
type RegisterParcelCmd struct {
	ParcelNo string                `json:"parcelNo" binding:"required,max=64"`
	Location models.ParcelLocation `json:"location"`
	AreaSqM  float64               `json:"areaSqM" binding:"gt=0"`
	Point    *models.GeoPoint      `json:"point"`
}

// CreateSIACmd drafts an SIA case.
type CreateSIACmd struct {
	Title         string    `json:"title" binding:"max=300"`
	Description   string    `json:"description"`
	ParcelIDs     []string  `json:"parcelIds"`
	FeedbackStart time.Time `json:"feedbackStart"`
	FeedbackEnd   time.Time `json:"feedbackEnd"`
}

// ScheduleHearingCmd schedules a public hearing.
type ScheduleHearingCmd struct {
	At    time.Time `json:"at" binding:"required"`
	Venue string    `json:"venue" binding:"required"`
}

// CompleteHearingCmd records hearing minutes.
type CompleteHearingCmd struct {
	MinutesRef string   `json:"minutesRef" binding:"required"`
	Attendees  []string `json:"attendees"`
}

// GenerateReportCmd attaches the SIA report.
type GenerateReportCmd struct {
	ReportRef string `json:"reportRef" binding:"required"`
}

// CreateNotificationCmd drafts a notification.
type CreateNotificationCmd struct {
	Type       models.NotificationType `json:"type" binding:"required,oneof=sec11 sec19"`
	Title      string                  `json:"title" binding:"required"`
	GazetteRef string                  `json:"gazetteRef"`
	ParcelIDs  []string                `json:"parcelIds" binding:"required,min=1,dive,required"`
}

// SubmitObjectionCmd files an objection against a notified parcel.
type SubmitObjectionCmd struct {
	ParcelID    string              `json:"parcelId" binding:"required"`
	Submitter   models.Submitter    `json:"submitter"`
	Text        string              `json:"text" binding:"required"`
	Attachments []models.Attachment `json:"attachments" binding:"max=3"`
}

// ResolveObjectionCmd records an objection outcome.
type ResolveObjectionCmd struct {
	Status     models.ObjectionStatus `json:"status" binding:"required,oneof=resolved rejected"`
	Resolution string                 `json:"resolution" binding:"required"`
}

// ComputeValuationCmd values a parcel.
type ComputeValuationCmd struct {
	Basis       models.ValuationBasis `json:"basis" binding:"required"`
	CircleRate  float64               `json:"circleRate" binding:"gt=0"`
	Multipliers models.Multipliers    `json:"multipliers"`
}

// DraftAwardCmd drafts a compensation award.
type DraftAwardCmd struct {
	ParcelID string           `json:"parcelId" binding:"required"`
	OwnerID  string           `json:"ownerId" binding:"required"`
	Mode     models.AwardMode `json:"mode" binding:"required"`
}

// CreateSchemeCmd drafts an allotment scheme.
type CreateSchemeCmd struct {
	Name                string             `json:"name" binding:"required"`
	Eligibility         models.Eligibility `json:"eligibility"`
	ApplicationDeadline time.Time          `json:"applicationDeadline"`
	Inventory           []string           `json:"inventory"`
}

// RegisterPropertyCmd adds a property to the inventory pool.
type RegisterPropertyCmd struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

// SubmitApplicationCmd files an application to a scheme.
type SubmitApplicationCmd struct {
	PartyID       string   `json:"partyId" binding:"required"`
	ApplicantName string   `json:"applicantName" binding:"required"`
	Category      string   `json:"category"`
	AnnualIncome  float64  `json:"annualIncome" binding:"gte=0"`
	Score         *float64 `json:"score"`
}

// ConductDrawCmd runs the e-draw. A count outside the verified pool fails
// with ErrInsufficientPool rather than a binding error.
type ConductDrawCmd struct {
	SelectedCount int `json:"selectedCount"`
}

// SubmitServiceRequestCmd files a service request.
type SubmitServiceRequestCmd struct {
	Type          models.RequestType `json:"type" binding:"required"`
	ApplicantName string             `json:"applicantName" binding:"required"`
	Contact       string             `json:"contact" binding:"required"`
	ParcelID      string             `json:"parcelId"`
	Description   string             `json:"description" binding:"required"`
}

// ResolveServiceRequestCmd closes a service request.
type ResolveServiceRequestCmd struct {
	Status     models.RequestStatus `json:"status" binding:"required,oneof=completed rejected"`
	Resolution string               `json:"resolution" binding:"required"`
}
