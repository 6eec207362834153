package kopano

import (
	"context"
	"testing"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// newTestServer returns a server and a close function the caller defers
// before goleak runs.
func newTestServer(t *testing.T) (*Server, func()) {
	server, err := New(
		WithDataDir(t.TempDir()),
		WithStoreBuilder(store.InMemoryStoreBuilder{}),
	)
	require.NoError(t, err)

	return server, func() {
		require.NoError(t, server.Close(context.Background()))
	}
}

func (s *Server) counterValue(t *testing.T, folderID mapi.ObjectID, kind mapi.CounterKind) int64 {
	value, err := db.ClientReadType(context.Background(), s.client, func(ctx context.Context, rd db.ReadOnly) (int64, error) {
		prop, err := rd.GetProperty(ctx, folderID, kind.Tag())
		if db.IsErrNotFound(err) {
			return 0, nil
		}

		return prop.ValueInt, err
	})
	require.NoError(t, err)

	return value
}

func TestServer_CreateHierarchy(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	ctx := context.Background()

	storeID, _, err := server.CreateObject(ctx, 0, mapi.ObjectTypeStore, 0, 1, 0)
	require.NoError(t, err)

	folderID, folderKey, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)
	require.False(t, folderKey.IsZero())

	msgID, msgKey, err := server.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 0, 1, 0)
	require.NoError(t, err)
	require.False(t, msgKey.IsZero())

	// A fresh message counts as one unread content.
	require.Equal(t, int64(1), server.counterValue(t, folderID, mapi.CounterContents))
	require.Equal(t, int64(1), server.counterValue(t, folderID, mapi.CounterUnread))

	resolved, err := server.ResolveSourceKey(ctx, msgKey)
	require.NoError(t, err)
	require.Equal(t, msgID, resolved)

	// Shape violations are rejected.
	_, _, err = server.CreateObject(ctx, storeID, mapi.ObjectTypeMessage, 0, 1, 0)
	require.ErrorIs(t, err, mapi.ErrInvalidParameter)

	_, _, err = server.CreateObject(ctx, msgID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.ErrorIs(t, err, mapi.ErrInvalidParameter)

	_, _, err = server.CreateObject(ctx, folderID, mapi.ObjectTypeStore, 0, 1, 0)
	require.ErrorIs(t, err, mapi.ErrInvalidParameter)
}

func TestServer_ReadFlagMaintainsUnread(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	ctx := context.Background()

	storeID, _, err := server.CreateObject(ctx, 0, mapi.ObjectTypeStore, 0, 1, 0)
	require.NoError(t, err)

	folderID, folderKey, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)

	msgID, _, err := server.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 0, 1, 0)
	require.NoError(t, err)

	syncID, err := server.RegisterSync(ctx, folderKey, mapi.SyncContents)
	require.NoError(t, err)

	watermark, changes, err := server.GetChanges(ctx, GetChangesRequest{
		RootSourceKey: folderKey,
		SyncID:        syncID,
		SyncType:      mapi.SyncContents,
	})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NoError(t, server.AdvanceSync(ctx, syncID, watermark))

	// Marking the message read drops the unread counter and surfaces as a
	// read state change.
	require.NoError(t, server.SetProperties(ctx, msgID, []db.Property{
		db.NewIntProperty(msgID, mapi.PropTagMessageFlags, int64(mapi.MsgFlagRead)),
	}, 0))

	require.Zero(t, server.counterValue(t, folderID, mapi.CounterUnread))
	require.Equal(t, int64(1), server.counterValue(t, folderID, mapi.CounterContents))

	_, changes, err = server.GetChanges(ctx, GetChangesRequest{
		RootSourceKey: folderKey,
		SyncID:        syncID,
		SinceChangeID: watermark,
		SyncType:      mapi.SyncContents,
		Flags:         mapi.SyncFlagReadState,
	})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, mapi.ChangeMessageFlags, changes[0].Type)

	// Flipping it back restores the counter.
	require.NoError(t, server.SetProperties(ctx, msgID, []db.Property{
		db.NewIntProperty(msgID, mapi.PropTagMessageFlags, 0),
	}, 0))

	require.Equal(t, int64(1), server.counterValue(t, folderID, mapi.CounterUnread))
}

func TestServer_MoveKeepsSourceKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	ctx := context.Background()

	storeID, _, err := server.CreateObject(ctx, 0, mapi.ObjectTypeStore, 0, 1, 0)
	require.NoError(t, err)

	folderA, _, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)

	folderB, folderBKey, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)

	msgID, msgKey, err := server.CreateObject(ctx, folderA, mapi.ObjectTypeMessage, 0, 1, 0)
	require.NoError(t, err)

	require.NoError(t, server.MoveObject(ctx, msgID, folderB, 0))

	moved, err := server.GetObject(ctx, msgID)
	require.NoError(t, err)
	require.Equal(t, folderB, moved.ParentID)

	// The source key survives the move.
	resolved, err := server.ResolveSourceKey(ctx, msgKey)
	require.NoError(t, err)
	require.Equal(t, msgID, resolved)

	require.Zero(t, server.counterValue(t, folderA, mapi.CounterContents))
	require.Zero(t, server.counterValue(t, folderA, mapi.CounterUnread))
	require.Equal(t, int64(1), server.counterValue(t, folderB, mapi.CounterContents))
	require.Equal(t, int64(1), server.counterValue(t, folderB, mapi.CounterUnread))

	// Subsequent changes carry the new parent source key.
	_, changes, err := server.GetChanges(ctx, GetChangesRequest{
		RootSourceKey: folderBKey,
		SinceChangeID: 1,
		SyncType:      mapi.SyncContents,
	})
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	require.True(t, changes[len(changes)-1].SourceKey.Equal(msgKey))
}

func TestServer_Attachments(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	ctx := context.Background()

	storeID, _, err := server.CreateObject(ctx, 0, mapi.ObjectTypeStore, 0, 1, 0)
	require.NoError(t, err)

	folderID, _, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)

	msgID, _, err := server.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 0, 1, 0)
	require.NoError(t, err)

	attID, _, err := server.CreateObject(ctx, msgID, mapi.ObjectTypeAttachment, 0, 1, 0)
	require.NoError(t, err)

	require.NoError(t, server.SetAttachment(ctx, attID, []byte("payload")))

	payload, err := server.GetAttachment(ctx, attID)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), payload)

	require.ErrorIs(t, server.SetAttachment(ctx, msgID, nil), mapi.ErrInvalidType)

	// Hard deleting the message releases the payload.
	_, err = server.DeleteObjects(ctx, []mapi.ObjectID{msgID}, mapi.DeleteContainer|mapi.DeleteAttachments|mapi.DeleteRecipients|mapi.HardDelete)
	require.NoError(t, err)

	_, err = server.GetAttachment(ctx, attID)
	require.Error(t, err)
}

func TestServer_DeleteNotifies(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	ctx := context.Background()

	storeID, _, err := server.CreateObject(ctx, 0, mapi.ObjectTypeStore, 0, 1, 0)
	require.NoError(t, err)

	folderID, folderKey, err := server.CreateObject(ctx, storeID, mapi.ObjectTypeFolder, 0, 1, 0)
	require.NoError(t, err)

	msgID, _, err := server.CreateObject(ctx, folderID, mapi.ObjectTypeMessage, 0, 1, 0)
	require.NoError(t, err)

	syncID, err := server.RegisterSync(ctx, folderKey, mapi.SyncContents)
	require.NoError(t, err)

	notifyCh := server.SubscribeSync(syncID)
	eventCh := server.AddWatcher(events.ObjectsDeleted{})

	deleted, err := server.DeleteObjects(ctx, []mapi.ObjectID{msgID}, mapi.DeleteContainer)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	select {
	case event := <-eventCh:
		deleted, ok := event.(events.ObjectsDeleted)
		require.True(t, ok)
		require.Equal(t, []mapi.ObjectID{msgID}, deleted.IDs)
		require.False(t, deleted.Hard)

	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for deletion event")
	}

	select {
	case watermark := <-notifyCh:
		require.Positive(t, watermark)

	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for commit notification")
	}
}

func TestServer_RetentionSweepStartsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	server, closeServer := newTestServer(t)
	defer closeServer()

	server.StartRetentionSweep(context.Background())
	server.StartRetentionSweep(context.Background())
}
