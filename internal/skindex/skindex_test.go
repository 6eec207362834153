package skindex

import (
	"context"
	"testing"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) db.Client {
	client, isNew, err := db_impl.NewSQLiteDB(t.TempDir(), "test")
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, client.Init(context.Background()))

	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return client
}

func createObject(t *testing.T, client db.Client, parentID mapi.ObjectID, typ mapi.ObjectType, flags mapi.ObjectFlags) mapi.ObjectID {
	id, err := db.ClientWriteType(context.Background(), client, func(ctx context.Context, tx db.Transaction) (mapi.ObjectID, error) {
		return tx.CreateObject(ctx, parentID, typ, 1, flags)
	})
	require.NoError(t, err)

	return id
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	client := newTestClient(t)
	replica := uuid.New()
	index := NewIndex(replica)

	storeID := createObject(t, client, 0, mapi.ObjectTypeStore, 0)

	var first, second mapi.SourceKey

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		var err error

		first, err = index.GetOrCreate(ctx, tx, storeID)
		require.NoError(t, err)

		second, err = index.GetOrCreate(ctx, tx, storeID)
		require.NoError(t, err)

		return nil
	}))

	require.True(t, first.Equal(second))

	gotReplica, ok := first.Replica()
	require.True(t, ok)
	require.Equal(t, replica, gotReplica)

	// A fresh index resolves the same mapping straight from the database.
	cold := NewIndex(replica)

	require.NoError(t, client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		id, err := cold.Resolve(ctx, rd, first)
		require.NoError(t, err)
		require.Equal(t, storeID, id)

		return nil
	}))
}

func TestGetOrCreate_CountersAdvance(t *testing.T) {
	client := newTestClient(t)
	index := NewIndex(uuid.New())

	storeID := createObject(t, client, 0, mapi.ObjectTypeStore, 0)
	folderID := createObject(t, client, storeID, mapi.ObjectTypeFolder, 0)

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		storeKey, err := index.GetOrCreate(ctx, tx, storeID)
		require.NoError(t, err)

		folderKey, err := index.GetOrCreate(ctx, tx, folderID)
		require.NoError(t, err)

		storeCounter, ok := storeKey.Counter()
		require.True(t, ok)

		folderCounter, ok := folderKey.Counter()
		require.True(t, ok)
		require.Greater(t, folderCounter, storeCounter)

		return nil
	}))
}

func TestSetSourceKey_CollisionAndReclaim(t *testing.T) {
	client := newTestClient(t)
	index := NewIndex(uuid.New())

	liveStore := createObject(t, client, 0, mapi.ObjectTypeStore, 0)
	deadStore := createObject(t, client, 0, mapi.ObjectTypeStore, mapi.ObjectFlagDeleted)
	deadFolder := createObject(t, client, deadStore, mapi.ObjectTypeFolder, 0)

	foreign := mapi.NewSourceKey(uuid.New(), 99)

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		require.NoError(t, index.SetSourceKey(ctx, tx, deadFolder, foreign))

		// The key is taken by an object under a deleted store, so it may be
		// reclaimed; taking it for a live object must not error.
		require.NoError(t, index.SetSourceKey(ctx, tx, liveStore, foreign))

		// Now the holder is live: reassigning collides.
		otherFolder, err := tx.CreateObject(ctx, liveStore, mapi.ObjectTypeFolder, 1, 0)
		require.NoError(t, err)

		err = index.SetSourceKey(ctx, tx, otherFolder, foreign)
		require.ErrorIs(t, err, mapi.ErrCollision)

		require.ErrorIs(t, index.SetSourceKey(ctx, tx, otherFolder, nil), mapi.ErrInvalidParameter)

		id, err := index.Resolve(ctx, tx, foreign)
		require.NoError(t, err)
		require.Equal(t, liveStore, id)

		return nil
	}))
}
