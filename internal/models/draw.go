package models

import "time"

// DrawRecord is the append-only audit record of one e-draw. Together with
// Candidates, Nonce is enough to recompute Permutation offline.
type DrawRecord struct {
	Base
	SchemeID      string     `json:"schemeId"`
	Algorithm     string     `json:"algorithm"`
	Nonce         string     `json:"nonce"`
	InputsHash    string     `json:"inputsHash"`
	Candidates    []string   `json:"candidates"`
	Permutation   []string   `json:"permutation"`
	SelectedCount int        `json:"selectedCount"`
	ConductedBy   Actor      `json:"conductedBy"`
	Voided        bool       `json:"voided"`
	VoidReason    string     `json:"voidReason,omitempty"`
	VoidedBy      *Actor     `json:"voidedBy,omitempty"`
	VoidedAt      *time.Time `json:"voidedAt,omitempty"`
}

// NewDrawRecord records a conducted draw. The first selected entries of
// permutation are the winners.
func NewDrawRecord(id, schemeID, algorithm, nonce, inputsHash string, candidates, permutation []string,
	selected int, actor Actor, now time.Time) (*DrawRecord, error) {
	if len(candidates) != len(permutation) {
		return nil, Invalid("permutation", "must contain every candidate exactly once")
	}
	if selected < 1 || selected > len(permutation) {
		return nil, Invalid("selectedCount", "must be between 1 and the number of candidates")
	}
	d := &DrawRecord{
		Base:          newBase(id, now),
		SchemeID:      schemeID,
		Algorithm:     algorithm,
		Nonce:         nonce,
		InputsHash:    inputsHash,
		Candidates:    candidates,
		Permutation:   permutation,
		SelectedCount: selected,
		ConductedBy:   actor,
	}
	d.record("", "active", "conduct", actor, now)
	return d, nil
}

func (d *DrawRecord) EntityKind() Kind { return KindDraw }
func (d *DrawRecord) ParentID() string { return d.SchemeID }

func (d *DrawRecord) StatusValue() string {
	if d.Voided {
		return "voided"
	}
	return "active"
}

// Selected returns the ids that won the draw, in draw order.
func (d *DrawRecord) Selected() []string {
	if d.SelectedCount > len(d.Permutation) {
		return d.Permutation
	}
	return d.Permutation[:d.SelectedCount]
}

// Void marks the record as reset. The record itself is kept.
func (d *DrawRecord) Void(reason string, actor Actor, now time.Time) error {
	if d.Voided {
		return &TransitionError{Entity: string(KindDraw), ID: d.ID, From: "voided", Action: "void"}
	}
	if reason == "" {
		return Invalid("reason", "is required to reset a draw")
	}
	d.Voided = true
	d.VoidReason = reason
	d.VoidedBy = &actor
	d.VoidedAt = &now
	d.record("active", "voided", "void", actor, now)
	return nil
}
