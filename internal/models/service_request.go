package models

import (
	"strings"
	"time"
)

// RequestType is the kind of citizen service request.
type RequestType string

const (
	RequestCertificate RequestType = "certificate"
	RequestMutation    RequestType = "mutation"
	RequestMapCopy     RequestType = "map_copy"
	RequestGrievance   RequestType = "grievance"
)

// RequestTypes lists every known request type.
var RequestTypes = []RequestType{RequestCertificate, RequestMutation, RequestMapCopy, RequestGrievance}

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	for _, known := range RequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RequestStatus is the lifecycle of a service request.
type RequestStatus string

const (
	RequestSubmitted   RequestStatus = "submitted"
	RequestUnderReview RequestStatus = "under_review"
	RequestCompleted   RequestStatus = "completed"
	RequestRejected    RequestStatus = "rejected"
)

// RequestTerminal lists statuses that stop the SLA clock.
var RequestTerminal = []RequestStatus{RequestCompleted, RequestRejected}

// RequestAction names an operation on a service request.
type RequestAction string

const (
	RequestActionReview   RequestAction = "review"
	RequestActionComplete RequestAction = "complete"
	RequestActionReject   RequestAction = "reject"
)

var requestMachine = machine[RequestStatus, RequestAction]{
	entity: string(KindServiceRequest),
	rules: map[RequestAction]rule[RequestStatus]{
		RequestActionReview:   {from: []RequestStatus{RequestSubmitted}, to: RequestUnderReview},
		RequestActionComplete: {from: []RequestStatus{RequestSubmitted, RequestUnderReview}, to: RequestCompleted},
		RequestActionReject:   {from: []RequestStatus{RequestSubmitted, RequestUnderReview}, to: RequestRejected},
	},
}

// ServiceRequest is a citizen request handled under an SLA.
type ServiceRequest struct {
	Base
	Type          RequestType   `json:"type"`
	ApplicantName string        `json:"applicantName"`
	Contact       string        `json:"contact"`
	ParcelID      string        `json:"parcelId,omitempty"`
	Description   string        `json:"description"`
	Status        RequestStatus `json:"status"`
	Deadline      time.Time     `json:"deadline"`
	Resolution    string        `json:"resolution,omitempty"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty"`
}

func (r *ServiceRequest) EntityKind() Kind    { return KindServiceRequest }
func (r *ServiceRequest) ParentID() string    { return "" }
func (r *ServiceRequest) StatusValue() string { return string(r.Status) }

// NewServiceRequest files a request whose deadline is now + sla.
func NewServiceRequest(id string, typ RequestType, applicant, contact, parcelID, description string, sla time.Duration, now time.Time) (*ServiceRequest, error) {
	if !typ.Valid() {
		return nil, Invalid("type", "unknown request type "+string(typ))
	}
	if strings.TrimSpace(applicant) == "" {
		return nil, Invalid("applicantName", "is required")
	}
	if strings.TrimSpace(contact) == "" {
		return nil, Invalid("contact", "is required")
	}
	if sla <= 0 {
		return nil, Invalid("type", "no SLA configured for "+string(typ))
	}
	return &ServiceRequest{
		Base:          newBase(id, now),
		Type:          typ,
		ApplicantName: strings.TrimSpace(applicant),
		Contact:       strings.TrimSpace(contact),
		ParcelID:      parcelID,
		Description:   strings.TrimSpace(description),
		Status:        RequestSubmitted,
		Deadline:      now.Add(sla),
	}, nil
}

// Review marks the request as picked up.
func (r *ServiceRequest) Review(actor Actor, now time.Time) error {
	to, err := requestMachine.next(r.ID, r.Status, RequestActionReview)
	if err != nil {
		return err
	}
	r.record(string(r.Status), string(to), string(RequestActionReview), actor, now)
	r.Status = to
	return nil
}

// Resolve completes or rejects the request with resolution text.
func (r *ServiceRequest) Resolve(outcome RequestStatus, text string, actor Actor, now time.Time) error {
	var action RequestAction
	switch outcome {
	case RequestCompleted:
		action = RequestActionComplete
	case RequestRejected:
		action = RequestActionReject
	default:
		return Invalid("status", "must be completed or rejected")
	}
	to, err := requestMachine.next(r.ID, r.Status, action)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return Invalid("resolution", "is required")
	}
	r.record(string(r.Status), string(to), string(action), actor, now)
	r.Status = to
	r.Resolution = strings.TrimSpace(text)
	r.ResolvedAt = &now
	return nil
}
