package services

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

// applicationNamespace derives application ids from (scheme, party) so two
// racing submissions by one party collide on insert.
var applicationNamespace = uuid.MustParse("6f1c2a9e-4b57-4d8e-9a43-0c2d7e51b8f4")

// AllocationService runs schemes, their applications and the e-draw.
type AllocationService struct {
	log     *logger.Logger
	entropy io.Reader
}

// CreateScheme drafts a scheme.
func (s *AllocationService) CreateScheme(u *unit, cmd CreateSchemeCmd) (*models.Scheme, error) {
	sc, err := models.NewScheme(u.newID(), cmd.Name, cmd.Eligibility, cmd.ApplicationDeadline.UTC(), cmd.Inventory, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(sc, "create", map[string]string{"inventory": strconv.Itoa(len(sc.Inventory))}); err != nil {
		return nil, err
	}
	return sc, nil
}

// PublishScheme opens a draft scheme for applications.
func (s *AllocationService) PublishScheme(u *unit, id string, version int) (*models.Scheme, error) {
	sc, err := loadForUpdate[models.Scheme](u, models.KindScheme, id, version)
	if err != nil {
		return nil, err
	}
	from := sc.Status
	if err := sc.Publish(u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"applicationDeadline": sc.ApplicationDeadline.Format(time.RFC3339)}
	if err := u.save(sc, "publish", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.SchemePublished, sc, data)
	return sc, nil
}

// CloseScheme ends a published scheme.
func (s *AllocationService) CloseScheme(u *unit, id string, version int) (*models.Scheme, error) {
	sc, err := loadForUpdate[models.Scheme](u, models.KindScheme, id, version)
	if err != nil {
		return nil, err
	}
	from := sc.Status
	if err := sc.Close(u.actor, u.now); err != nil {
		return nil, err
	}
	if err := u.save(sc, "close", string(from), nil); err != nil {
		return nil, err
	}
	u.emit(events.SchemeClosed, sc, nil)
	return sc, nil
}

// RegisterProperty adds an allottable property to the inventory pool.
func (s *AllocationService) RegisterProperty(u *unit, cmd RegisterPropertyCmd) (*models.Property, error) {
	p, err := models.NewProperty(u.newID(), cmd.Code, cmd.Description, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(p, "register", map[string]string{"code": p.Code}); err != nil {
		return nil, err
	}
	return p, nil
}

// SubmitApplication files an application while the scheme accepts them.
// Each party may apply once per scheme.
func (s *AllocationService) SubmitApplication(u *unit, schemeID string, cmd SubmitApplicationCmd) (*models.Application, error) {
	sc, err := repository.Get[models.Scheme](u.ctx, u.tx, models.KindScheme, schemeID, repository.LockShare)
	if err != nil {
		return nil, err
	}
	if err := sc.AcceptingApplications(u.now); err != nil {
		return nil, err
	}
	existing, err := repository.List[models.Application](u.ctx, u.tx, models.KindApplication, sc.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.PartyID == cmd.PartyID {
			return nil, models.Invalid("partyId", "has already applied to this scheme")
		}
	}

	id := uuid.NewSHA1(applicationNamespace, []byte(sc.ID+"\x00"+cmd.PartyID)).String()
	app, err := models.NewApplication(id, sc.ID, cmd.PartyID, cmd.ApplicantName, cmd.Category, cmd.AnnualIncome, cmd.Score, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(app, "submit", map[string]string{"party_id": app.PartyID}); err != nil {
		return nil, err
	}
	u.emit(events.ApplicationSubmitted, app, map[string]string{"schemeId": sc.ID})
	return app, nil
}

// lockApplication takes the scheme-level shared lock and then the
// application row, in that order, so verification cannot interleave with a
// draw on the same scheme.
func (s *AllocationService) lockApplication(u *unit, id string, version int) (*models.Scheme, *models.Application, error) {
	peek, err := repository.Get[models.Application](u.ctx, u.tx, models.KindApplication, id, repository.LockNone)
	if err != nil {
		return nil, nil, err
	}
	sc, err := repository.Get[models.Scheme](u.ctx, u.tx, models.KindScheme, peek.SchemeID, repository.LockShare)
	if err != nil {
		return nil, nil, err
	}
	app, err := loadForUpdate[models.Application](u, models.KindApplication, id, version)
	if err != nil {
		return nil, nil, err
	}
	if sc.Status != models.SchemePublished {
		return nil, nil, &models.TransitionError{
			Entity: string(models.KindApplication),
			ID:     app.ID,
			From:   string(app.Status),
			Action: "review",
			Reason: "scheme " + sc.ID + " is " + string(sc.Status),
		}
	}
	return sc, app, nil
}

// VerifyApplication checks eligibility and marks the application verified.
func (s *AllocationService) VerifyApplication(u *unit, id string, version int) (*models.Application, error) {
	sc, app, err := s.lockApplication(u, id, version)
	if err != nil {
		return nil, err
	}
	from := app.Status
	if err := app.Verify(sc.Eligibility, u.actor, u.now); err != nil {
		return nil, err
	}
	if err := u.save(app, "verify", string(from), nil); err != nil {
		return nil, err
	}
	u.emit(events.ApplicationVerified, app, map[string]string{"schemeId": sc.ID})
	return app, nil
}

// RejectApplication rejects a submitted application with a reason.
func (s *AllocationService) RejectApplication(u *unit, id string, version int, reason string) (*models.Application, error) {
	sc, app, err := s.lockApplication(u, id, version)
	if err != nil {
		return nil, err
	}
	from := app.Status
	if err := app.Reject(reason, u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"schemeId": sc.ID, "reason": app.RejectReason}
	if err := u.save(app, "reject", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.ApplicationRejected, app, data)
	return app, nil
}

// ConductDraw selects k verified applications by seeded random permutation
// and allots the scheme inventory in draw order. Everything it changes,
// including the draw record, is written in the caller's transaction.
func (s *AllocationService) ConductDraw(u *unit, schemeID string, version int, k int) (*models.DrawRecord, error) {
	sc, err := loadForUpdate[models.Scheme](u, models.KindScheme, schemeID, version)
	if err != nil {
		return nil, err
	}
	if err := sc.CanDraw(); err != nil {
		return nil, err
	}

	apps, err := repository.List[models.Application](u.ctx, u.tx, models.KindApplication, sc.ID)
	if err != nil {
		return nil, err
	}
	verified := make(map[string]*models.Application)
	ids := make([]string, 0, len(apps))
	for _, a := range apps {
		if a.Status == models.ApplicationVerified {
			verified[a.ID] = a
			ids = append(ids, a.ID)
		}
	}
	if k <= 0 || k > len(ids) {
		return nil, fmt.Errorf("%w: %d selections requested from %d verified applications",
			models.ErrInsufficientPool, k, len(ids))
	}
	if n := len(sc.Inventory); n > 0 && k > n {
		return nil, fmt.Errorf("%w: %d selections requested for %d inventory items",
			models.ErrInsufficientPool, k, n)
	}

	props := make([]*models.Property, 0, len(sc.Inventory))
	for _, pid := range sc.Inventory {
		p, err := repository.Get[models.Property](u.ctx, u.tx, models.KindProperty, pid, repository.LockExclusive)
		if err != nil {
			return nil, err
		}
		if p.Allotment != nil {
			return nil, fmt.Errorf("%w: property %s is held by scheme %s",
				models.ErrInventoryAllotted, p.ID, p.Allotment.SchemeID)
		}
		props = append(props, p)
	}

	nonce, err := NewNonce(s.entropy)
	if err != nil {
		return nil, err
	}
	candidates := CanonicalCandidates(ids)
	perm, err := Permute(nonce, candidates)
	if err != nil {
		return nil, err
	}
	rec, err := models.NewDrawRecord(u.newID(), sc.ID, DrawAlgorithm, hex.EncodeToString(nonce),
		InputsHash(candidates), candidates, perm, k, u.actor, u.now)
	if err != nil {
		return nil, err
	}
	detail := map[string]string{
		"schemeId":      sc.ID,
		"nonce":         rec.Nonce,
		"inputsHash":    rec.InputsHash,
		"candidates":    strconv.Itoa(len(candidates)),
		"selectedCount": strconv.Itoa(k),
	}
	if err := u.create(rec, "conduct", detail); err != nil {
		return nil, err
	}

	for i, appID := range rec.Selected() {
		app := verified[appID]
		from := app.Status
		if err := app.Select(i+1, rec.ID, u.actor, u.now); err != nil {
			return nil, err
		}
		if i < len(props) {
			p := props[i]
			if err := p.Allot(models.Allotment{SchemeID: sc.ID, ApplicationID: app.ID, DrawID: rec.ID, At: u.now}, u.actor); err != nil {
				return nil, err
			}
			app.PropertyID = p.ID
			if err := u.save(p, "allot", "available", map[string]string{"application_id": app.ID}); err != nil {
				return nil, err
			}
		}
		if err := u.save(app, "select", string(from), map[string]string{"draw_seq": strconv.Itoa(i + 1)}); err != nil {
			return nil, err
		}
	}

	if err := sc.AttachDraw(rec.ID, u.actor, u.now); err != nil {
		return nil, err
	}
	if err := u.save(sc, "conduct_draw", string(sc.Status), map[string]string{"draw_id": rec.ID}); err != nil {
		return nil, err
	}

	u.emit(events.DrawConducted, rec, detail)
	s.log.Info("Draw conducted", map[string]interface{}{
		"scheme_id":      sc.ID,
		"draw_id":        rec.ID,
		"candidates":     len(candidates),
		"selected_count": k,
		"inputs_hash":    rec.InputsHash,
	})
	return rec, nil
}

// ResetDraw voids the scheme's active draw, returns its winners to verified
// and frees their allotments. The draw record is kept.
func (s *AllocationService) ResetDraw(u *unit, schemeID string, version int, reason string) (*models.DrawRecord, error) {
	sc, err := loadForUpdate[models.Scheme](u, models.KindScheme, schemeID, version)
	if err != nil {
		return nil, err
	}
	drawID, err := sc.DetachDraw(u.actor, u.now)
	if err != nil {
		return nil, err
	}
	rec, err := loadForUpdate[models.DrawRecord](u, models.KindDraw, drawID, 0)
	if err != nil {
		return nil, err
	}
	if err := rec.Void(reason, u.actor, u.now); err != nil {
		return nil, err
	}
	detail := map[string]string{"schemeId": sc.ID, "reason": rec.VoidReason}
	if err := u.save(rec, "void", "active", detail); err != nil {
		return nil, err
	}

	for _, appID := range rec.Selected() {
		app, err := loadForUpdate[models.Application](u, models.KindApplication, appID, 0)
		if err != nil {
			return nil, err
		}
		propertyID := app.PropertyID
		from := app.Status
		if err := app.ResetDraw(u.actor, u.now); err != nil {
			return nil, err
		}
		if err := u.save(app, "reset_draw", string(from), map[string]string{"draw_id": rec.ID}); err != nil {
			return nil, err
		}
		if propertyID == "" {
			continue
		}
		p, err := loadForUpdate[models.Property](u, models.KindProperty, propertyID, 0)
		if err != nil {
			return nil, err
		}
		if err := p.Release(rec.ID, u.actor, u.now); err != nil {
			return nil, err
		}
		if err := u.save(p, "release", "allotted", map[string]string{"draw_id": rec.ID}); err != nil {
			return nil, err
		}
	}

	if err := u.save(sc, "reset_draw", string(sc.Status), detail); err != nil {
		return nil, err
	}
	u.emit(events.DrawReset, rec, detail)
	s.log.Warn("Draw reset", map[string]interface{}{
		"scheme_id": sc.ID,
		"draw_id":   rec.ID,
		"reason":    rec.VoidReason,
		"actor_id":  u.actor.ID,
	})
	return rec, nil
}
