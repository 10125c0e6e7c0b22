package models

import (
	"strings"
	"time"
)

// SIAStatus is the lifecycle of a Social Impact Assessment case.
type SIAStatus string

const (
	SIADraft            SIAStatus = "draft"
	SIAPublished        SIAStatus = "published"
	SIAHearingScheduled SIAStatus = "hearing_scheduled"
	SIAHearingCompleted SIAStatus = "hearing_completed"
	SIAReportGenerated  SIAStatus = "report_generated"
	SIAClosed           SIAStatus = "closed"
)

// SIAAction names an operation on a case.
type SIAAction string

const (
	SIAActionPublish         SIAAction = "publish"
	SIAActionScheduleHearing SIAAction = "schedule_hearing"
	SIAActionCompleteHearing SIAAction = "complete_hearing"
	SIAActionGenerateReport  SIAAction = "generate_report"
	SIAActionClose           SIAAction = "close"
)

var siaMachine = machine[SIAStatus, SIAAction]{
	entity: string(KindSIA),
	rules: map[SIAAction]rule[SIAStatus]{
		SIAActionPublish:         {from: []SIAStatus{SIADraft}, to: SIAPublished},
		SIAActionScheduleHearing: {from: []SIAStatus{SIAPublished, SIAHearingScheduled}, to: SIAHearingScheduled},
		SIAActionCompleteHearing: {from: []SIAStatus{SIAHearingScheduled}, to: SIAHearingCompleted},
		SIAActionGenerateReport:  {from: []SIAStatus{SIAHearingCompleted}, to: SIAReportGenerated},
		SIAActionClose:           {from: []SIAStatus{SIAReportGenerated}, to: SIAClosed},
	},
}

// SIAFeedbackClosed lists statuses in which the public feedback window is no
// longer running. A draft has not opened it yet.
var SIAFeedbackClosed = []SIAStatus{SIADraft, SIAHearingScheduled, SIAHearingCompleted, SIAReportGenerated, SIAClosed}

// HearingStatus is the lifecycle of a single public hearing.
type HearingStatus string

const (
	HearingScheduled HearingStatus = "scheduled"
	HearingCompleted HearingStatus = "completed"
)

// HearingTerminal lists hearing statuses that stop the SLA clock.
var HearingTerminal = []HearingStatus{HearingCompleted}

// Hearing is a public hearing held under an SIA.
type Hearing struct {
	ID          string        `json:"id"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	Venue       string        `json:"venue"`
	Status      HearingStatus `json:"status"`
	MinutesRef  string        `json:"minutesRef,omitempty"`
	Attendees   []string      `json:"attendees,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// SIA is a Social Impact Assessment case.
type SIA struct {
	Base
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ParcelIDs     []string   `json:"parcelIds,omitempty"`
	FeedbackStart time.Time  `json:"feedbackStart"`
	FeedbackEnd   time.Time  `json:"feedbackEnd"`
	Status        SIAStatus  `json:"status"`
	Hearings      []Hearing  `json:"hearings,omitempty"`
	ReportRef     string     `json:"reportRef,omitempty"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
}

func (s *SIA) EntityKind() Kind    { return KindSIA }
func (s *SIA) ParentID() string    { return "" }
func (s *SIA) StatusValue() string { return string(s.Status) }

// NewSIA creates a draft case. Drafts may be incomplete; Publish validates.
func NewSIA(id, title, description string, parcelIDs []string, start, end time.Time, now time.Time) *SIA {
	return &SIA{
		Base:          newBase(id, now),
		Title:         strings.TrimSpace(title),
		Description:   strings.TrimSpace(description),
		ParcelIDs:     parcelIDs,
		FeedbackStart: start,
		FeedbackEnd:   end,
		Status:        SIADraft,
	}
}

func (s *SIA) apply(action SIAAction, actor Actor, now time.Time) error {
	to, err := siaMachine.next(s.ID, s.Status, action)
	if err != nil {
		return err
	}
	from := s.Status
	s.Status = to
	s.record(string(from), string(to), string(action), actor, now)
	return nil
}

// Publish opens the case for public feedback.
func (s *SIA) Publish(actor Actor, now time.Time) error {
	if err := siaMachine.check(s.ID, s.Status, SIAActionPublish); err != nil {
		return err
	}
	if s.Title == "" {
		return Invalid("title", "is required to publish")
	}
	if s.Description == "" {
		return Invalid("description", "is required to publish")
	}
	if s.FeedbackStart.IsZero() || s.FeedbackEnd.IsZero() || !s.FeedbackStart.Before(s.FeedbackEnd) {
		return Invalid("feedbackWindow", "start date must be before end date")
	}
	if err := s.apply(SIAActionPublish, actor, now); err != nil {
		return err
	}
	s.PublishedAt = &now
	return nil
}

// ScheduleHearing adds a scheduled hearing. Several may be pending at once.
func (s *SIA) ScheduleHearing(hearingID string, at time.Time, venue string, actor Actor, now time.Time) (*Hearing, error) {
	if err := siaMachine.check(s.ID, s.Status, SIAActionScheduleHearing); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, Invalid("scheduledAt", "is required")
	}
	if strings.TrimSpace(venue) == "" {
		return nil, Invalid("venue", "is required")
	}
	s.Hearings = append(s.Hearings, Hearing{
		ID:          hearingID,
		ScheduledAt: at,
		Venue:       strings.TrimSpace(venue),
		Status:      HearingScheduled,
	})
	if err := s.apply(SIAActionScheduleHearing, actor, now); err != nil {
		s.Hearings = s.Hearings[:len(s.Hearings)-1]
		return nil, err
	}
	return &s.Hearings[len(s.Hearings)-1], nil
}

// Hearing returns the hearing with the given id.
func (s *SIA) Hearing(hearingID string) (*Hearing, bool) {
	for i := range s.Hearings {
		if s.Hearings[i].ID == hearingID {
			return &s.Hearings[i], true
		}
	}
	return nil, false
}

// PendingHearings counts hearings still scheduled.
func (s *SIA) PendingHearings() int {
	n := 0
	for _, h := range s.Hearings {
		if h.Status == HearingScheduled {
			n++
		}
	}
	return n
}

// CompleteHearing records minutes for a scheduled hearing. When it was the
// last pending hearing the case advances to hearing_completed.
func (s *SIA) CompleteHearing(hearingID, minutesRef string, attendees []string, actor Actor, now time.Time) error {
	if err := siaMachine.check(s.ID, s.Status, SIAActionCompleteHearing); err != nil {
		return err
	}
	h, ok := s.Hearing(hearingID)
	if !ok {
		return &NotFoundError{Kind: "hearing", ID: hearingID}
	}
	if h.Status != HearingScheduled {
		return &TransitionError{
			Entity: "hearing",
			ID:     hearingID,
			From:   string(h.Status),
			Action: string(SIAActionCompleteHearing),
		}
	}
	if strings.TrimSpace(minutesRef) == "" {
		return Invalid("minutesRef", "signed minutes are required to complete a hearing")
	}
	h.Status = HearingCompleted
	h.MinutesRef = strings.TrimSpace(minutesRef)
	h.Attendees = append([]string(nil), attendees...)
	h.CompletedAt = &now

	if s.PendingHearings() > 0 {
		s.record(string(s.Status), string(s.Status), string(SIAActionCompleteHearing), actor, now)
		return nil
	}
	return s.apply(SIAActionCompleteHearing, actor, now)
}

// GenerateReport attaches the SIA report once hearings are done.
func (s *SIA) GenerateReport(reportRef string, actor Actor, now time.Time) error {
	if err := siaMachine.check(s.ID, s.Status, SIAActionGenerateReport); err != nil {
		return err
	}
	completed := 0
	for _, h := range s.Hearings {
		if h.Status == HearingCompleted {
			completed++
		}
	}
	if completed == 0 {
		return &TransitionError{
			Entity: string(KindSIA),
			ID:     s.ID,
			From:   string(s.Status),
			Action: string(SIAActionGenerateReport),
			Reason: "at least one completed hearing is required",
		}
	}
	if err := s.apply(SIAActionGenerateReport, actor, now); err != nil {
		return err
	}
	s.ReportRef = strings.TrimSpace(reportRef)
	return nil
}

// Close ends the case.
func (s *SIA) Close(actor Actor, now time.Time) error {
	return s.apply(SIAActionClose, actor, now)
}
