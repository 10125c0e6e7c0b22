package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationBasis is the method used to value a parcel.
type ValuationBasis string

const (
	BasisCircle ValuationBasis = "circle"
	BasisMarket ValuationBasis = "market"
	BasisHybrid ValuationBasis = "hybrid"
)

// Valid reports whether b is a known basis.
func (b ValuationBasis) Valid() bool {
	switch b {
	case BasisCircle, BasisMarket, BasisHybrid:
		return true
	}
	return false
}

// Factor is a named valuation multiplier. The set is closed so every
// computed amount can be re-derived from its inputs.
type Factor string

const (
	FactorLocation         Factor = "location"
	FactorLandUse          Factor = "land_use"
	FactorRuralDistance    Factor = "rural_distance"
	FactorSolatium         Factor = "solatium"
	FactorMarketAdjustment Factor = "market_adjustment"
	FactorStructure        Factor = "structure"
)

var knownFactors = map[Factor]struct{}{
	FactorLocation:         {},
	FactorLandUse:          {},
	FactorRuralDistance:    {},
	FactorSolatium:         {},
	FactorMarketAdjustment: {},
	FactorStructure:        {},
}

// Valid reports whether f is a known factor.
func (f Factor) Valid() bool {
	_, ok := knownFactors[f]
	return ok
}

// Multipliers maps factors to positive multipliers.
type Multipliers map[Factor]float64

// Validate checks every factor name and value.
func (m Multipliers) Validate() error {
	for f, v := range m {
		if !f.Valid() {
			return Invalid("multipliers", fmt.Sprintf("unknown factor %q", f))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Invalid("multipliers."+string(f), "must be a positive number")
		}
	}
	return nil
}

// Product multiplies all values in a fixed factor order; 1 when empty.
func (m Multipliers) Product() decimal.Decimal {
	keys := make([]string, 0, len(m))
	for f := range m {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	product := decimal.NewFromInt(1)
	for _, k := range keys {
		product = product.Mul(decimal.NewFromFloat(m[Factor(k)]))
	}
	return product
}

// Valuation is an immutable parcel valuation. Corrections create a new one.
type Valuation struct {
	Base
	ParcelID    string          `json:"parcelId"`
	Basis       ValuationBasis  `json:"basis"`
	CircleRate  decimal.Decimal `json:"circleRate"`
	AreaSqM     float64         `json:"areaSqM"`
	Multipliers Multipliers     `json:"multipliers,omitempty"`
	Amount      decimal.Decimal `json:"computedAmount"`
	ComputedBy  Actor           `json:"computedBy"`
}

func (v *Valuation) EntityKind() Kind    { return KindValuation }
func (v *Valuation) ParentID() string    { return v.ParcelID }
func (v *Valuation) StatusValue() string { return string(v.Basis) }

// MarshalJSON renders the computed amount with exactly two decimal places.
func (v Valuation) MarshalJSON() ([]byte, error) {
	type valuation Valuation
	return json.Marshal(struct {
		valuation
		Amount string `json:"computedAmount"`
	}{valuation: valuation(v), Amount: v.Amount.StringFixed(2)})
}

// ComputeAmount returns circleRate × area × Π(multipliers), rounded half-to-even to 2 places.
func ComputeAmount(circleRate, areaSqM float64, multipliers Multipliers) decimal.Decimal {
	amount := decimal.NewFromFloat(circleRate).
		Mul(decimal.NewFromFloat(areaSqM)).
		Mul(multipliers.Product())
	return amount.RoundBank(2)
}

// NewValuation validates inputs and computes the parcel valuation.
func NewValuation(id string, parcel *Parcel, basis ValuationBasis, circleRate float64, multipliers Multipliers, actor Actor, now time.Time) (*Valuation, error) {
	if parcel == nil {
		return nil, Invalid("parcelId", "is required")
	}
	if !basis.Valid() {
		return nil, Invalid("basis", "must be circle, market or hybrid")
	}
	if math.IsNaN(circleRate) || math.IsInf(circleRate, 0) || circleRate <= 0 {
		return nil, Invalid("circleRate", "must be greater than 0")
	}
	if err := multipliers.Validate(); err != nil {
		return nil, err
	}
	frozen := make(Multipliers, len(multipliers))
	for f, m := range multipliers {
		frozen[f] = m
	}
	return &Valuation{
		Base:        newBase(id, now),
		ParcelID:    parcel.ID,
		Basis:       basis,
		CircleRate:  decimal.NewFromFloat(circleRate),
		AreaSqM:     parcel.AreaSqM,
		Multipliers: frozen,
		Amount:      ComputeAmount(circleRate, parcel.AreaSqM, frozen),
		ComputedBy:  actor,
	}, nil
}

// Latest returns the most recently created valuation, or nil. Ties on
// CreatedAt keep the later element, so callers pass records in insertion order.
func Latest(valuations []*Valuation) *Valuation {
	var latest *Valuation
	for _, v := range valuations {
		if latest == nil || !v.CreatedAt.Before(latest.CreatedAt) {
			latest = v
		}
	}
	return latest
}
