package services

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/metrics"
	"github.com/stwalsh4118/landflow/internal/models"
)

func TestWorkflow_SIAEndToEnd(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "S.No. 42/1", 1200)

	sia, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{
		Title:         "Ring road phase 2",
		Description:   "Impact of the ring road on Wagholi village",
		ParcelIDs:     []string{p.ID},
		FeedbackStart: t0,
		FeedbackEnd:   t0.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SIADraft, sia.Status)

	sia, err = f.wf.PublishSIA(f.ctx, caseOfficer, sia.ID, sia.Version)
	require.NoError(t, err)
	sia, err = f.wf.ScheduleHearing(f.ctx, caseOfficer, sia.ID, 0, ScheduleHearingCmd{
		At:    t0.Add(10 * 24 * time.Hour),
		Venue: "Gram Panchayat hall",
	})
	require.NoError(t, err)
	require.Len(t, sia.Hearings, 1)

	sia, err = f.wf.CompleteHearing(f.ctx, caseOfficer, sia.ID, 0, sia.Hearings[0].ID, CompleteHearingCmd{
		MinutesRef: "minutes/2026/42.pdf",
		Attendees:  []string{"Sarpanch", "Tehsildar"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SIAHearingCompleted, sia.Status)

	sia, err = f.wf.GenerateReport(f.ctx, caseOfficer, sia.ID, 0, GenerateReportCmd{ReportRef: "reports/sia-42.pdf"})
	require.NoError(t, err)
	sia, err = f.wf.CloseSIA(f.ctx, caseOfficer, sia.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, models.SIAClosed, sia.Status)
	assert.Len(t, sia.History, 5)
	assert.Equal(t, []events.Type{
		events.SIAPublished,
		events.HearingScheduled,
		events.HearingCompleted,
		events.SIAReportGenerated,
		events.SIAClosed,
	}, f.recorder.Types())

	trail, err := f.wf.AuditTrail(f.ctx, models.KindSIA, sia.ID)
	require.NoError(t, err)
	require.Len(t, trail, 6)
	assert.Equal(t, "create", trail[0].Action)
	assert.Equal(t, "close", trail[5].Action)
	assert.Equal(t, caseOfficer, trail[5].Actor)
}

func TestWorkflow_SIAPublishInvalidKeepsDraft(t *testing.T) {
	f := newFixture(t)
	sia, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{
		Title:         "Incomplete case",
		FeedbackStart: t0.Add(time.Hour),
		FeedbackEnd:   t0,
	})
	require.NoError(t, err)

	_, err = f.wf.PublishSIA(f.ctx, caseOfficer, sia.ID, 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.wf.GetSIA(f.ctx, sia.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SIADraft, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, f.recorder.Events())
}

func TestWorkflow_IllegalTransitionLeavesStateAndPublishesNothing(t *testing.T) {
	f := newFixture(t)
	sia, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = f.wf.CloseSIA(f.ctx, caseOfficer, sia.ID, 0)

	var te *models.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "draft", te.From)
	got, err := f.wf.GetSIA(f.ctx, sia.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SIADraft, got.Status)
	assert.Empty(t, f.recorder.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("sia", "sia.close", metrics.OutcomeRejected)))
}

func TestWorkflow_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.wf.RegisterParcel(f.ctx, citizen, RegisterParcelCmd{ParcelNo: "1"})
	var fe *models.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.RoleCitizen, fe.Role)

	_, err = f.wf.RegisterParcel(f.ctx, models.Actor{Role: models.RoleAdmin}, RegisterParcelCmd{ParcelNo: "1"})
	assert.ErrorIs(t, err, models.ErrForbidden, "an actor without id is rejected")

	parcels, err := f.wf.ListParcels(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, parcels)
}

func TestWorkflow_StaleVersion(t *testing.T) {
	f := newFixture(t)
	sia, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{
		Title: "t", Description: "d", FeedbackStart: t0, FeedbackEnd: t0.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.wf.PublishSIA(f.ctx, caseOfficer, sia.ID, sia.Version+1)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("sia", "sia.publish", metrics.OutcomeConflict)))
}

func TestWorkflow_UnknownParcelsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.CreateNotification(f.ctx, caseOfficer, CreateNotificationCmd{
		Type: models.NotificationSec11, Title: "x", ParcelIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWorkflow_PublishNotificationAdvancesParcels(t *testing.T) {
	f := newFixture(t)
	p1 := f.parcel(t, "1", 100)
	p2 := f.parcel(t, "2", 100)

	n := f.openSec11(t, p1.ID, p2.ID)
	assert.Equal(t, models.NotificationWindowOpen, n.Status)
	assert.Equal(t, t0.Add(60*24*time.Hour), n.WindowDeadline())

	for _, id := range []string{p1.ID, p2.ID} {
		p, err := f.wf.GetParcel(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ParcelUnderAcquisition, p.Status)
	}

	// A second notice over the same parcels leaves them where they are.
	n2, err := f.wf.CreateNotification(f.ctx, caseOfficer, CreateNotificationCmd{
		Type: models.NotificationSec19, Title: "Declaration", ParcelIDs: []string{p1.ID},
	})
	require.NoError(t, err)
	_, err = f.wf.PublishNotification(f.ctx, caseOfficer, n2.ID, 0)
	require.NoError(t, err)
	p, err := f.wf.GetParcel(f.ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParcelUnderAcquisition, p.Status)
	assert.Equal(t, 2, p.Version)

	_, err = f.wf.ArchiveNotification(f.ctx, caseOfficer, n2.ID, 0)
	require.NoError(t, err)
}

func TestWorkflow_SubmitObjection(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	n := f.openSec11(t, p.ID)

	o, err := f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(p.ID))
	require.NoError(t, err)
	assert.Equal(t, models.ObjectionSubmitted, o.Status)
	assert.Equal(t, n.ID, o.NotificationID)

	list, err := f.wf.ListObjections(f.ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)
	assert.Contains(t, f.recorder.Types(), events.ObjectionSubmitted)
}

func TestWorkflow_ObjectionParcelNotAffectedRegardlessOfWindow(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	outsider := f.parcel(t, "2", 100)

	n, err := f.wf.CreateNotification(f.ctx, caseOfficer, CreateNotificationCmd{
		Type: models.NotificationSec11, Title: "x", ParcelIDs: []string{p.ID},
	})
	require.NoError(t, err)

	// Draft notice: membership still wins over window state.
	_, err = f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(outsider.ID))
	assert.ErrorIs(t, err, models.ErrParcelNotAffected)

	_, err = f.wf.PublishNotification(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	_, err = f.wf.OpenObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	_, err = f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(outsider.ID))
	assert.ErrorIs(t, err, models.ErrParcelNotAffected)

	_, err = f.wf.CloseObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	_, err = f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(outsider.ID))
	assert.ErrorIs(t, err, models.ErrParcelNotAffected)
}

func TestWorkflow_ObjectionRejectedOutsideWindow(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture, n *models.Notification)
	}{
		{
			name: "window elapsed",
			setup: func(t *testing.T, f *fixture, n *models.Notification) {
				f.clock.Advance(61 * 24 * time.Hour)
			},
		},
		{
			name: "objection_resolved",
			setup: func(t *testing.T, f *fixture, n *models.Notification) {
				_, err := f.wf.CloseObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
				require.NoError(t, err)
			},
		},
		{
			name: "closed",
			setup: func(t *testing.T, f *fixture, n *models.Notification) {
				_, err := f.wf.CloseObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
				require.NoError(t, err)
				_, err = f.wf.ArchiveNotification(f.ctx, caseOfficer, n.ID, 0)
				require.NoError(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.parcel(t, "1", 100)
			n := f.openSec11(t, p.ID)
			tt.setup(t, f, n)

			_, err := f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(p.ID))
			assert.ErrorIs(t, err, models.ErrIllegalTransition)

			list, err := f.wf.ListObjections(f.ctx, n.ID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestWorkflow_ObjectionAgainstPossessedParcel(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	n := f.openSec11(t, p.ID)
	f.awardParcel(t, p.ID)

	_, err := f.wf.RecordPossession(f.ctx, landOfficer, p.ID, 0)
	require.NoError(t, err)

	_, err = f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(p.ID))
	assert.ErrorIs(t, err, models.ErrParcelPossessed)
}

func TestWorkflow_ObjectionResolvableAfterWindowCloses(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	n := f.openSec11(t, p.ID)
	o, err := f.wf.SubmitObjection(f.ctx, citizen, n.ID, objectionCmd(p.ID))
	require.NoError(t, err)

	_, err = f.wf.ReviewObjection(f.ctx, caseOfficer, o.ID, 0)
	require.NoError(t, err)
	_, err = f.wf.CloseObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)

	_, err = f.wf.ResolveObjection(f.ctx, caseOfficer, o.ID, 0, ResolveObjectionCmd{Status: models.ObjectionResolved})
	assert.ErrorIs(t, err, models.ErrValidation, "resolution text is required")

	o, err = f.wf.ResolveObjection(f.ctx, caseOfficer, o.ID, 0, ResolveObjectionCmd{
		Status:     models.ObjectionResolved,
		Resolution: "Boundary corrected in the schedule.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ObjectionResolved, o.Status)
	assert.NotNil(t, o.ResolvedAt)
}

func TestWorkflow_InvalidSubmitterFields(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	n := f.openSec11(t, p.ID)

	cmd := objectionCmd(p.ID)
	cmd.Submitter.Aadhaar = "1234"
	_, err := f.wf.SubmitObjection(f.ctx, citizen, n.ID, cmd)

	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "submitter.aadhaar", ve.Field)
}

// awardParcel values p, drafts an award and approves it.
func (f *fixture) awardParcel(t *testing.T, parcelID string) *models.Award {
	t.Helper()
	_, err := f.wf.ComputeValuation(f.ctx, valuer, parcelID, ComputeValuationCmd{
		Basis: models.BasisCircle, CircleRate: 100,
	})
	require.NoError(t, err)
	a, err := f.wf.DraftAward(f.ctx, valuer, DraftAwardCmd{ParcelID: parcelID, OwnerID: "owner-1", Mode: models.AwardCash})
	require.NoError(t, err)
	a, err = f.wf.ApproveAward(f.ctx, landOfficer, a.ID, 0)
	require.NoError(t, err)
	return a
}

func TestWorkflow_ValuationAndAwardLifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 50)

	_, err := f.wf.DraftAward(f.ctx, valuer, DraftAwardCmd{ParcelID: p.ID, OwnerID: "owner-1", Mode: models.AwardCash})
	assert.ErrorIs(t, err, models.ErrValuationMissing)

	v, err := f.wf.ComputeValuation(f.ctx, valuer, p.ID, ComputeValuationCmd{
		Basis:       models.BasisCircle,
		CircleRate:  100,
		Multipliers: models.Multipliers{"location": 1.2, "solatium": 1.5},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9000.00").Equal(v.Amount), "got %s", v.Amount)

	a, err := f.wf.DraftAward(f.ctx, valuer, DraftAwardCmd{ParcelID: p.ID, OwnerID: "owner-1", Mode: models.AwardCash})
	require.NoError(t, err)
	assert.Equal(t, v.ID, a.ValuationID)

	// A later valuation does not change the drafted amount.
	f.clock.Advance(time.Hour)
	v2, err := f.wf.ComputeValuation(f.ctx, valuer, p.ID, ComputeValuationCmd{Basis: models.BasisMarket, CircleRate: 200})
	require.NoError(t, err)
	a, err = f.wf.GetAward(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9000").Equal(a.Amount))

	vals, err := f.wf.ListValuations(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, v2.ID, models.Latest(vals).ID)

	a, err = f.wf.ApproveAward(f.ctx, landOfficer, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "AWD-2026-000001", a.Number)

	parcel, err := f.wf.GetParcel(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParcelAwarded, parcel.Status)

	a, err = f.wf.DisburseAward(f.ctx, landOfficer, a.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.AwardDisbursed, a.Status)

	_, err = f.wf.VoidAward(f.ctx, landOfficer, a.ID, 0, "duplicate")
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestWorkflow_AwardNumbersNeverReissued(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 50)
	_, err := f.wf.ComputeValuation(f.ctx, valuer, p.ID, ComputeValuationCmd{Basis: models.BasisCircle, CircleRate: 10})
	require.NoError(t, err)

	first, err := f.wf.DraftAward(f.ctx, valuer, DraftAwardCmd{ParcelID: p.ID, OwnerID: "owner-1", Mode: models.AwardCash})
	require.NoError(t, err)
	second, err := f.wf.DraftAward(f.ctx, valuer, DraftAwardCmd{ParcelID: p.ID, OwnerID: "owner-2", Mode: models.AwardCash})
	require.NoError(t, err)

	first, err = f.wf.ApproveAward(f.ctx, landOfficer, first.ID, 0)
	require.NoError(t, err)
	first, err = f.wf.VoidAward(f.ctx, landOfficer, first.ID, 0, "owner deceased, succession pending")
	require.NoError(t, err)
	assert.Equal(t, "AWD-2026-000001", first.Number)

	// Approving a voided award fails before a number is drawn.
	_, err = f.wf.ApproveAward(f.ctx, landOfficer, first.ID, 0)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	second, err = f.wf.ApproveAward(f.ctx, landOfficer, second.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "AWD-2026-000002", second.Number)
}

func TestWorkflow_RecordPossessionRequiresAward(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 50)

	_, err := f.wf.RecordPossession(f.ctx, landOfficer, p.ID, 0)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	f.awardParcel(t, p.ID)
	p, err = f.wf.RecordPossession(f.ctx, landOfficer, p.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ParcelPossessed, p.Status)
	assert.Contains(t, f.recorder.Types(), events.ParcelPossessed)

	_, err = f.wf.RecordPossession(f.ctx, landOfficer, p.ID, 0)
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))
}
