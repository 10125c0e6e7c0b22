package models

import (
	"math"
	"strings"
	"time"
)

// ParcelStatus is forward-only: unaffected < under_acq < awarded < possessed.
type ParcelStatus string

const (
	ParcelUnaffected       ParcelStatus = "unaffected"
	ParcelUnderAcquisition ParcelStatus = "under_acq"
	ParcelAwarded          ParcelStatus = "awarded"
	ParcelPossessed        ParcelStatus = "possessed"
)

var parcelRank = map[ParcelStatus]int{
	ParcelUnaffected:       0,
	ParcelUnderAcquisition: 1,
	ParcelAwarded:          2,
	ParcelPossessed:        3,
}

// Valid reports whether s is a known parcel status.
func (s ParcelStatus) Valid() bool {
	_, ok := parcelRank[s]
	return ok
}

// Before reports whether s precedes other in the acquisition order.
func (s ParcelStatus) Before(other ParcelStatus) bool {
	return parcelRank[s] < parcelRank[other]
}

// ParcelLocation is the revenue-administration address of a parcel.
type ParcelLocation struct {
	Village  string `json:"village"`
	Taluka   string `json:"taluka"`
	District string `json:"district"`
}

// Parcel is a unit of land that may be acquired.
type Parcel struct {
	Base
	ParcelNo string         `json:"parcelNo"`
	Location ParcelLocation `json:"location"`
	AreaSqM  float64        `json:"areaSqM"`
	Point    *GeoPoint      `json:"point,omitempty"`
	Status   ParcelStatus   `json:"status"`
}

func (p *Parcel) EntityKind() Kind    { return KindParcel }
func (p *Parcel) ParentID() string    { return "" }
func (p *Parcel) StatusValue() string { return string(p.Status) }

// NewParcel registers an unaffected parcel.
func NewParcel(id, parcelNo string, loc ParcelLocation, areaSqM float64, point *GeoPoint, now time.Time) (*Parcel, error) {
	if strings.TrimSpace(parcelNo) == "" {
		return nil, Invalid("parcelNo", "is required")
	}
	if strings.TrimSpace(loc.Village) == "" || strings.TrimSpace(loc.District) == "" {
		return nil, Invalid("location", "village and district are required")
	}
	if math.IsNaN(areaSqM) || math.IsInf(areaSqM, 0) || areaSqM <= 0 {
		return nil, Invalid("areaSqM", "must be greater than 0")
	}
	if point != nil {
		if err := point.Validate(); err != nil {
			return nil, err
		}
	}
	return &Parcel{
		Base:     newBase(id, now),
		ParcelNo: strings.TrimSpace(parcelNo),
		Location: loc,
		AreaSqM:  areaSqM,
		Point:    point,
		Status:   ParcelUnaffected,
	}, nil
}

// Advance moves the parcel forward to status to. Staying put or moving back
// fails with a *TransitionError.
func (p *Parcel) Advance(to ParcelStatus, actor Actor, now time.Time) error {
	if !to.Valid() {
		return Invalid("status", "unknown parcel status "+string(to))
	}
	if !p.Status.Before(to) {
		return &TransitionError{
			Entity: string(KindParcel),
			ID:     p.ID,
			From:   string(p.Status),
			Action: "advance to " + string(to),
			Reason: "parcel status is forward-only",
		}
	}
	from := p.Status
	p.Status = to
	p.record(string(from), string(to), "advance", actor, now)
	return nil
}
