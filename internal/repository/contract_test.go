package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landflow/internal/models"
)

var (
	testNow   = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	testActor = models.Actor{ID: "u-1", Role: models.RoleLandOfficer}
)

func newParcel(t *testing.T, id string) *models.Parcel {
	t.Helper()
	p, err := models.NewParcel(id, "S.No. "+id, models.ParcelLocation{Village: "Wagholi", District: "Pune"}, 100, nil, testNow)
	require.NoError(t, err)
	return p
}

// runStoreContract checks the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		p := newParcel(t, "p-create")

		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			return Create(ctx, tx, p, testNow)
		}))
		assert.Equal(t, 1, p.Version)

		var got *models.Parcel
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			var err error
			got, err = Get[models.Parcel](ctx, tx, models.KindParcel, "p-create", LockNone)
			return err
		}))
		assert.Equal(t, p.ParcelNo, got.ParcelNo)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, models.ParcelUnaffected, got.Status)
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		err := store.RunInTx(ctx, func(tx Tx) error {
			_, err := Get[models.Parcel](ctx, tx, models.KindParcel, "nope", LockNone)
			return err
		})
		assert.True(t, IsNotFound(err))
	})

	t.Run("save bumps version and rejects stale writes", func(t *testing.T) {
		store := newStore(t)
		p := newParcel(t, "p-save")
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error { return Create(ctx, tx, p, testNow) }))

		stale := *p
		require.NoError(t, p.Advance(models.ParcelUnderAcquisition, testActor, testNow))
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error { return Save(ctx, tx, p, testNow) }))
		assert.Equal(t, 2, p.Version)

		require.NoError(t, stale.Advance(models.ParcelAwarded, testActor, testNow))
		err := store.RunInTx(ctx, func(tx Tx) error { return Save(ctx, tx, &stale, testNow) })

		var cerr *models.ConcurrencyError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 1, cerr.Expected)
		assert.Equal(t, 2, cerr.Actual)
		assert.Equal(t, 1, stale.Version, "failed save restores the in-memory version")

		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			got, err := Get[models.Parcel](ctx, tx, models.KindParcel, "p-save", LockNone)
			require.NoError(t, err)
			assert.Equal(t, models.ParcelUnderAcquisition, got.Status)
			return nil
		}))
	})

	t.Run("duplicate insert", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error { return Create(ctx, tx, newParcel(t, "p-dup"), testNow) }))

		err := store.RunInTx(ctx, func(tx Tx) error { return Create(ctx, tx, newParcel(t, "p-dup"), testNow) })
		assert.ErrorIs(t, err, models.ErrConcurrentModification)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		store := newStore(t)
		boom := errors.New("boom")

		err := store.RunInTx(ctx, func(tx Tx) error {
			require.NoError(t, Create(ctx, tx, newParcel(t, "p-rollback"), testNow))
			require.NoError(t, tx.AppendAudit(ctx, models.AuditEntry{
				ID: "au-rollback", EntityKind: models.KindParcel, EntityID: "p-rollback",
				Action: "register", Actor: testActor, At: testNow,
			}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = store.RunInTx(ctx, func(tx Tx) error {
			_, err := Get[models.Parcel](ctx, tx, models.KindParcel, "p-rollback", LockNone)
			return err
		})
		assert.True(t, IsNotFound(err))

		entries, err := store.ListAudit(ctx, models.KindParcel, "p-rollback")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("award numbers survive rollback", func(t *testing.T) {
		store := newStore(t)
		var first, second int64

		_ = store.RunInTx(ctx, func(tx Tx) error {
			var err error
			first, err = tx.NextAwardNumber(ctx)
			require.NoError(t, err)
			return errors.New("abandon")
		})
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			var err error
			second, err = tx.NextAwardNumber(ctx)
			return err
		}))
		assert.Greater(t, second, first)
	})

	t.Run("list by parent in creation order", func(t *testing.T) {
		store := newStore(t)
		p := newParcel(t, "p-list")
		other := newParcel(t, "p-other")

		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			if err := Create(ctx, tx, p, testNow); err != nil {
				return err
			}
			if err := Create(ctx, tx, other, testNow); err != nil {
				return err
			}
			for i, rate := range []float64{30, 10, 20} {
				v, err := models.NewValuation("v-list-"+string(rune('a'+i)), p, models.BasisCircle, rate, nil, testActor, testNow)
				require.NoError(t, err)
				if err := Create(ctx, tx, v, testNow); err != nil {
					return err
				}
			}
			v, err := models.NewValuation("v-other", other, models.BasisCircle, 5, nil, testActor, testNow)
			require.NoError(t, err)
			return Create(ctx, tx, v, testNow)
		}))

		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			vals, err := List[models.Valuation](ctx, tx, models.KindValuation, "p-list")
			require.NoError(t, err)
			require.Len(t, vals, 3)
			assert.Equal(t, []string{"v-list-a", "v-list-b", "v-list-c"},
				[]string{vals[0].ID, vals[1].ID, vals[2].ID})
			assert.Equal(t, "v-list-c", models.Latest(vals).ID)
			return nil
		}))
	})

	t.Run("audit trail", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
			for i, action := range []string{"register", "advance"} {
				if err := tx.AppendAudit(ctx, models.AuditEntry{
					ID: "au-" + action, EntityKind: models.KindParcel, EntityID: "p-audit",
					Action: action, Actor: testActor, To: "x",
					Detail: map[string]string{"step": string(rune('1' + i))},
					At:     testNow.Add(time.Duration(i) * time.Minute),
				}); err != nil {
					return err
				}
			}
			return nil
		}))

		entries, err := store.ListAudit(ctx, models.KindParcel, "p-audit")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "register", entries[0].Action)
		assert.Equal(t, "2", entries[1].Detail["step"])
		assert.Equal(t, models.RoleLandOfficer, entries[1].Actor.Role)
	})
}
