package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AwardMode is how compensation is paid.
type AwardMode string

const (
	AwardCash    AwardMode = "cash"
	AwardPooling AwardMode = "pooling"
	AwardHybrid  AwardMode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m AwardMode) Valid() bool {
	switch m {
	case AwardCash, AwardPooling, AwardHybrid:
		return true
	}
	return false
}

// AwardStatus is the lifecycle of a compensation award.
type AwardStatus string

const (
	AwardDraft     AwardStatus = "draft"
	AwardApproved  AwardStatus = "approved"
	AwardDisbursed AwardStatus = "disbursed"
	AwardVoided    AwardStatus = "voided"
)

// AwardAction names an operation on an award.
type AwardAction string

const (
	AwardActionApprove  AwardAction = "approve"
	AwardActionDisburse AwardAction = "disburse"
	AwardActionVoid     AwardAction = "void"
)

var awardMachine = machine[AwardStatus, AwardAction]{
	entity: string(KindAward),
	rules: map[AwardAction]rule[AwardStatus]{
		AwardActionApprove:  {from: []AwardStatus{AwardDraft}, to: AwardApproved},
		AwardActionDisburse: {from: []AwardStatus{AwardApproved}, to: AwardDisbursed},
		AwardActionVoid:     {from: []AwardStatus{AwardDraft, AwardApproved}, to: AwardVoided},
	},
}

// Award is a compensation award for one owner of one parcel.
type Award struct {
	Base
	ParcelID    string          `json:"parcelId"`
	OwnerID     string          `json:"ownerId"`
	Mode        AwardMode       `json:"mode"`
	Amount      decimal.Decimal `json:"amount"`
	ValuationID string          `json:"valuationId"`
	Status      AwardStatus     `json:"status"`
	Number      string          `json:"awardNumber,omitempty"`
	Sequence    int64           `json:"sequence,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
	DisbursedAt *time.Time      `json:"disbursedAt,omitempty"`
	VoidReason  string          `json:"voidReason,omitempty"`
}

func (a *Award) EntityKind() Kind    { return KindAward }
func (a *Award) ParentID() string    { return a.ParcelID }
func (a *Award) StatusValue() string { return string(a.Status) }

// NewAward drafts an award whose amount is frozen from valuation.
func NewAward(id, ownerID string, mode AwardMode, valuation *Valuation, now time.Time) (*Award, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, Invalid("ownerId", "is required")
	}
	if !mode.Valid() {
		return nil, Invalid("mode", "must be cash, pooling or hybrid")
	}
	if valuation == nil {
		return nil, ErrValuationMissing
	}
	return &Award{
		Base:        newBase(id, now),
		ParcelID:    valuation.ParcelID,
		OwnerID:     strings.TrimSpace(ownerID),
		Mode:        mode,
		Amount:      valuation.Amount,
		ValuationID: valuation.ID,
		Status:      AwardDraft,
	}, nil
}

// MarshalJSON renders the amount with exactly two decimal places.
func (a Award) MarshalJSON() ([]byte, error) {
	type award Award
	return json.Marshal(struct {
		award
		Amount string `json:"amount"`
	}{award: award(a), Amount: a.Amount.StringFixed(2)})
}

func (a *Award) apply(action AwardAction, actor Actor, now time.Time) error {
	to, err := awardMachine.next(a.ID, a.Status, action)
	if err != nil {
		return err
	}
	from := a.Status
	a.Status = to
	a.record(string(from), string(to), string(action), actor, now)
	return nil
}

// CanApprove reports whether Approve would succeed, so a number is only
// drawn from the sequence for an approvable award.
func (a *Award) CanApprove() error {
	return awardMachine.check(a.ID, a.Status, AwardActionApprove)
}

// FormatAwardNumber renders a sequence value as an award number.
func FormatAwardNumber(year int, seq int64) string {
	return fmt.Sprintf("AWD-%d-%06d", year, seq)
}

// Approve assigns the award number and approves the award.
func (a *Award) Approve(seq int64, actor Actor, now time.Time) error {
	if seq <= 0 {
		return Invalid("sequence", "must be positive")
	}
	if err := a.apply(AwardActionApprove, actor, now); err != nil {
		return err
	}
	a.Sequence = seq
	a.Number = FormatAwardNumber(now.Year(), seq)
	a.ApprovedAt = &now
	return nil
}

// Disburse marks the award paid.
func (a *Award) Disburse(actor Actor, now time.Time) error {
	if err := a.apply(AwardActionDisburse, actor, now); err != nil {
		return err
	}
	a.DisbursedAt = &now
	return nil
}

// Void cancels the award. Its number, if any, is never reissued.
func (a *Award) Void(reason string, actor Actor, now time.Time) error {
	if err := awardMachine.check(a.ID, a.Status, AwardActionVoid); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return Invalid("reason", "is required")
	}
	if err := a.apply(AwardActionVoid, actor, now); err != nil {
		return err
	}
	a.VoidReason = strings.TrimSpace(reason)
	return nil
}
