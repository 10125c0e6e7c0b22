//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landflow/internal/database"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/testutil/containers"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t)

	_, err := database.Migrate(pg.Config.URL())
	require.NoError(t, err)

	db, err := database.NewPostgresPool(context.Background(), pg.Config)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewPostgresStore(db)
}

func TestPostgresStore_Contract(t *testing.T) {
	store := newPostgresStore(t)
	runStoreContract(t, func(*testing.T) Store { return store })
}

func TestPostgresStore_NowaitLockConflict(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
		return Create(ctx, tx, newParcel(t, "p-locked"), testNow)
	}))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.RunInTx(ctx, func(tx Tx) error {
			if _, err := tx.Load(ctx, models.KindParcel, "p-locked", LockExclusive); err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := store.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.Load(ctx, models.KindParcel, "p-locked", LockShare)
		return err
	})
	close(release)

	assert.ErrorIs(t, err, models.ErrConcurrentModification)
	require.NoError(t, <-done)

	// Unlocked reads never conflict.
	require.NoError(t, store.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.Load(ctx, models.KindParcel, "p-locked", LockExclusive)
		return err
	}))
}
