package counters

import (
	"context"
	"testing"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
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

// buildFolder creates a store with one folder holding a read message, an
// unread message, an associated message, a soft-deleted message and a
// subfolder. Counters are left untouched.
func buildFolder(t *testing.T, client db.Client) (storeID, folderID mapi.ObjectID) {
	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		var err error

		storeID, err = tx.CreateObject(ctx, 0, mapi.ObjectTypeStore, 1, 0)
		require.NoError(t, err)

		folderID, err = tx.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 1, 0)
		require.NoError(t, err)

		readMsg, err := tx.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 1, 0)
		require.NoError(t, err)
		require.NoError(t, tx.UpsertProperty(ctx, db.NewIntProperty(readMsg, mapi.PropTagMessageFlags, int64(mapi.MsgFlagRead))))

		_, err = tx.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 1, 0)
		require.NoError(t, err)

		_, err = tx.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 1, mapi.ObjectFlagAssociated)
		require.NoError(t, err)

		_, err = tx.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 1, mapi.ObjectFlagDeleted)
		require.NoError(t, err)

		_, err = tx.CreateObject(ctx, folderID, mapi.ObjectTypeFolder, 1, 0)
		require.NoError(t, err)

		return nil
	}))

	return storeID, folderID
}

func counterValue(t *testing.T, client db.Client, folderID mapi.ObjectID, kind mapi.CounterKind) int64 {
	value, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, rd db.ReadOnly) (int64, error) {
		prop, err := rd.GetProperty(ctx, folderID, kind.Tag())
		if db.IsErrNotFound(err) {
			return 0, nil
		}

		return prop.ValueInt, err
	})
	require.NoError(t, err)

	return value
}

func TestReset_RepairsDrift(t *testing.T) {
	client := newTestClient(t)
	counters := New(props.NewStore())

	storeID, folderID := buildFolder(t, client)

	// Nothing maintained the counters yet, so every nonzero reference value
	// counts as drift.
	fixed, err := counters.Reset(context.Background(), client, folderID)
	require.NoError(t, err)
	require.Equal(t, 5, fixed)

	require.Equal(t, int64(2), counterValue(t, client, folderID, mapi.CounterContents))
	require.Equal(t, int64(1), counterValue(t, client, folderID, mapi.CounterUnread))
	require.Equal(t, int64(1), counterValue(t, client, folderID, mapi.CounterAssocContents))
	require.Equal(t, int64(1), counterValue(t, client, folderID, mapi.CounterDeletedMessages))
	require.Equal(t, int64(1), counterValue(t, client, folderID, mapi.CounterSubfolders))

	// A second pass finds nothing to do.
	fixed, err = counters.Reset(context.Background(), client, folderID)
	require.NoError(t, err)
	require.Zero(t, fixed)

	// The counters are mirrored into the store's table row.
	mirrored, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, rd db.ReadOnly) (db.Property, error) {
		return rd.GetTableProperty(ctx, storeID, folderID, mapi.PropTagContentCount)
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), mirrored.ValueInt)
}

func TestAdjust_ClampsAtZero(t *testing.T) {
	client := newTestClient(t)
	counters := New(props.NewStore())

	_, folderID := buildFolder(t, client)

	_, err := counters.Reset(context.Background(), client, folderID)
	require.NoError(t, err)

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		return counters.Adjust(ctx, tx, folderID, mapi.CounterUnread, -5)
	}))

	require.Zero(t, counterValue(t, client, folderID, mapi.CounterUnread))
}

func TestAdjust_IntroducedDriftIsFound(t *testing.T) {
	client := newTestClient(t)
	counters := New(props.NewStore())

	_, folderID := buildFolder(t, client)

	_, err := counters.Reset(context.Background(), client, folderID)
	require.NoError(t, err)

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		return counters.Adjust(ctx, tx, folderID, mapi.CounterContents, 3)
	}))

	fixed, err := counters.Reset(context.Background(), client, folderID)
	require.NoError(t, err)
	require.Equal(t, 1, fixed)
	require.Equal(t, int64(2), counterValue(t, client, folderID, mapi.CounterContents))
}

func TestReset_RejectsNonFolder(t *testing.T) {
	client := newTestClient(t)
	counters := New(props.NewStore())

	storeID, _ := buildFolder(t, client)

	_, err := counters.Reset(context.Background(), client, storeID)
	require.ErrorIs(t, err, mapi.ErrInvalidType)
}
