package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Kopano-dev/kopano-core-sub010/db"
	"github.com/Kopano-dev/kopano-core-sub010/events"
	"github.com/Kopano-dev/kopano-core-sub010/internal/counters"
	"github.com/Kopano-dev/kopano-core-sub010/internal/db_impl"
	"github.com/Kopano-dev/kopano-core-sub010/internal/ics"
	"github.com/Kopano-dev/kopano-core-sub010/internal/props"
	"github.com/Kopano-dev/kopano-core-sub010/internal/skindex"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/security"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	lock   sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(event events.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.events = append(s.events, event)
}

func (s *recordingSink) count(match func(events.Event) bool) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	var n int

	for _, event := range s.events {
		if match(event) {
			n++
		}
	}

	return n
}

type nullDirectory struct{}

func (nullDirectory) VisibleObjects(context.Context) ([]mapi.SourceKey, error) {
	return nil, nil
}

func (nullDirectory) InScope(context.Context, mapi.SourceKey) (bool, error) {
	return true, nil
}

// flakyClient fails the nth Write call after Arm and passes everything else
// through. Counting starts at Arm so fixture setup writes are not counted.
type flakyClient struct {
	db.Client

	failOn int
	calls  int
	armed  bool
	lock   sync.Mutex
}

var errInjected = errors.New("injected write failure")

func (c *flakyClient) Arm() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.armed = true
}

func (c *flakyClient) Write(ctx context.Context, op func(context.Context, db.Transaction) error) error {
	c.lock.Lock()

	var fail bool

	if c.armed {
		c.calls++
		fail = c.calls == c.failOn
	}

	c.lock.Unlock()

	if fail {
		return errInjected
	}

	return c.Client.Write(ctx, op)
}

type harness struct {
	client   db.Client
	counters *counters.Counters
	cascade  *Cascade
	blobs    store.Store
	sink     *recordingSink
	index    *skindex.Index
}

func newHarness(t *testing.T, client db.Client) *harness {
	propStore := props.NewStore()
	index := skindex.NewIndex(uuid.New())
	folderCounters := counters.New(propStore)
	changeLog := ics.NewChangeLog(client, index, propStore, security.AllowAll{}, nullDirectory{})
	blobs := store.NewInMemoryStore()
	sink := &recordingSink{}

	return &harness{
		client:   client,
		counters: folderCounters,
		cascade:  New(client, index, folderCounters, propStore, security.AllowAll{}, changeLog, blobs, sink),
		blobs:    blobs,
		sink:     sink,
		index:    index,
	}
}

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

type fixture struct {
	store, folderA, folderB mapi.ObjectID
	msg1, msg2, msg3        mapi.ObjectID
	attachment, recipient   mapi.ObjectID
}

// buildTree creates a store holding folder A with two messages (the first
// carrying an attachment and a recipient) and subfolder B with one message.
// Folder A's counters are settled afterwards.
func buildTree(t *testing.T, h *harness) fixture {
	var f fixture

	require.NoError(t, h.client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		var err error

		f.store, err = tx.CreateObject(ctx, 0, mapi.ObjectTypeStore, 1, 0)
		require.NoError(t, err)
		require.NoError(t, tx.UpsertProperty(ctx, db.NewIntProperty(f.store, mapi.PropTagMessageSizeExtended, 1000)))

		f.folderA, err = tx.CreateObject(ctx, f.store, mapi.ObjectTypeFolder, 1, 0)
		require.NoError(t, err)

		f.msg1, err = tx.CreateObject(ctx, f.folderA, mapi.ObjectTypeMessage, 1, 0)
		require.NoError(t, err)
		require.NoError(t, tx.UpsertProperty(ctx, db.NewIntProperty(f.msg1, mapi.PropTagMessageFlags, int64(mapi.MsgFlagRead))))
		require.NoError(t, tx.UpsertProperty(ctx, db.NewIntProperty(f.msg1, mapi.PropTagMessageSizeExtended, 300)))

		f.attachment, err = tx.CreateObject(ctx, f.msg1, mapi.ObjectTypeAttachment, 1, 0)
		require.NoError(t, err)

		f.recipient, err = tx.CreateObject(ctx, f.msg1, mapi.ObjectTypeRecipient, 1, 0)
		require.NoError(t, err)

		f.msg2, err = tx.CreateObject(ctx, f.folderA, mapi.ObjectTypeMessage, 1, 0)
		require.NoError(t, err)

		f.folderB, err = tx.CreateObject(ctx, f.folderA, mapi.ObjectTypeFolder, 1, 0)
		require.NoError(t, err)

		f.msg3, err = tx.CreateObject(ctx, f.folderB, mapi.ObjectTypeMessage, 1, 0)
		require.NoError(t, err)

		return nil
	}))

	require.NoError(t, h.blobs.Set(f.attachment, []byte("payload")))

	for _, folderID := range []mapi.ObjectID{f.folderA, f.folderB} {
		_, err := h.counters.Reset(context.Background(), h.client, folderID)
		require.NoError(t, err)
	}

	return f
}

const allContentFlags = mapi.DeleteFolders | mapi.DeleteMessages | mapi.DeleteRecipients | mapi.DeleteAttachments

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

func TestSoftDelete(t *testing.T) {
	h := newHarness(t, newTestClient(t))
	f := buildTree(t, h)

	deleted, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.msg1, f.msg2}, mapi.DeleteContainer|mapi.DeleteRecipients|mapi.DeleteAttachments)
	require.NoError(t, err)
	require.Len(t, deleted, 4)

	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		for _, id := range []mapi.ObjectID{f.msg1, f.msg2, f.attachment, f.recipient} {
			object, err := rd.GetObject(ctx, id)
			require.NoError(t, err)
			require.True(t, object.Flags.Has(mapi.ObjectFlagDeleted))
		}

		deletedOn, err := rd.GetProperty(ctx, f.msg1, mapi.PropTagDeletedOn)
		require.NoError(t, err)
		require.Positive(t, deletedOn.ValueInt)

		return nil
	}))

	require.Zero(t, counterValue(t, h.client, f.folderA, mapi.CounterContents))
	require.Zero(t, counterValue(t, h.client, f.folderA, mapi.CounterUnread))
	require.Equal(t, int64(2), counterValue(t, h.client, f.folderA, mapi.CounterDeletedMessages))

	// The still-live subfolder is untouched.
	require.Equal(t, int64(1), counterValue(t, h.client, f.folderA, mapi.CounterSubfolders))

	// One bulk invalidation plus one row event per top-level message.
	require.Equal(t, 1, h.sink.count(func(e events.Event) bool {
		deleted, ok := e.(events.ObjectsDeleted)

		return ok && !deleted.Hard && len(deleted.IDs) == 4
	}))
	require.Equal(t, 2, h.sink.count(func(e events.Event) bool {
		_, ok := e.(events.TableRowDeleted)

		return ok
	}))

	// Soft delete keeps the rows, so the size aggregate is reduced all the
	// same but the source keys stay resolvable.
	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		size, err := rd.GetProperty(ctx, f.store, mapi.PropTagMessageSizeExtended)
		require.NoError(t, err)
		require.Equal(t, int64(700), size.ValueInt)

		return nil
	}))
}

// Deleting a folder root must shed the sizes of the messages inside the
// subtree, not just the root item itself.
func TestSoftDelete_FolderRootReducesStoreSize(t *testing.T) {
	h := newHarness(t, newTestClient(t))
	f := buildTree(t, h)

	deleted, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.DeleteContainer|allContentFlags)
	require.NoError(t, err)
	require.Len(t, deleted, 7)

	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		size, err := rd.GetProperty(ctx, f.store, mapi.PropTagMessageSizeExtended)
		require.NoError(t, err)
		require.Equal(t, int64(700), size.ValueInt)

		return nil
	}))
}

func TestDelete_FlagMaskGuardsChildren(t *testing.T) {
	h := newHarness(t, newTestClient(t))
	f := buildTree(t, h)

	_, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.DeleteContainer|mapi.DeleteFolders)
	require.ErrorIs(t, err, mapi.ErrHasMessages)

	_, err = h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.DeleteContainer|mapi.DeleteMessages|mapi.DeleteRecipients|mapi.DeleteAttachments)
	require.ErrorIs(t, err, mapi.ErrHasFolders)

	_, err = h.cascade.Delete(context.Background(), []mapi.ObjectID{f.store}, mapi.DeleteContainer|allContentFlags)
	require.ErrorIs(t, err, mapi.ErrInvalidParameter)

	// A failed expansion left nothing flagged.
	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		object, err := rd.GetObject(ctx, f.msg1)
		require.NoError(t, err)
		require.False(t, object.Flags.Has(mapi.ObjectFlagDeleted))

		return nil
	}))
}

func TestHardDelete(t *testing.T) {
	h := newHarness(t, newTestClient(t))
	f := buildTree(t, h)

	deleted, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.DeleteContainer|mapi.HardDelete|allContentFlags)
	require.NoError(t, err)
	require.Len(t, deleted, 7)

	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		for _, id := range []mapi.ObjectID{f.folderA, f.folderB, f.msg1, f.msg2, f.msg3, f.attachment, f.recipient} {
			_, err := rd.GetObject(ctx, id)
			require.ErrorIs(t, err, db.ErrNotFound)
		}

		// The store itself survives with its size aggregate reduced by the
		// one message that had a recorded size.
		size, err := rd.GetProperty(ctx, f.store, mapi.PropTagMessageSizeExtended)
		require.NoError(t, err)
		require.Equal(t, int64(700), size.ValueInt)

		return nil
	}))

	// The attachment payload is gone from the blob store.
	_, err = h.blobs.Get(f.attachment)
	require.Error(t, err)

	require.Equal(t, 1, h.sink.count(func(e events.Event) bool {
		deleted, ok := e.(events.ObjectsDeleted)

		return ok && deleted.Hard && len(deleted.IDs) == 7
	}))
}

func TestHardDelete_PartialFailureKeepsCommittedPrefix(t *testing.T) {
	client := newTestClient(t)

	// Once armed, call 1 is the expansion, calls 2 and 3 the first two
	// single-item batches; call 4 fails.
	flaky := &flakyClient{Client: client, failOn: 4}

	h := newHarness(t, flaky)
	h.cascade.SetBatchSize(1)

	f := buildTree(t, h)

	flaky.Arm()

	deleted, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.DeleteContainer|mapi.HardDelete|allContentFlags)

	var partial *PartialError

	require.ErrorAs(t, err, &partial)
	require.ErrorIs(t, err, errInjected)
	require.Len(t, deleted, 2)
	require.Equal(t, partial.Deleted, deleted)

	// The committed prefix is durably gone, everything after the failing
	// batch is still there.
	gone := make(map[mapi.ObjectID]struct{})

	for _, item := range deleted {
		gone[item.ID] = struct{}{}
	}

	require.NoError(t, client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		for _, id := range []mapi.ObjectID{f.folderA, f.folderB, f.msg1, f.msg2, f.msg3, f.attachment, f.recipient} {
			_, err := rd.GetObject(ctx, id)

			if _, ok := gone[id]; ok {
				require.ErrorIs(t, err, db.ErrNotFound)
			} else {
				require.NoError(t, err)
			}
		}

		return nil
	}))
}

func TestDelete_SkipAssociated(t *testing.T) {
	h := newHarness(t, newTestClient(t))
	f := buildTree(t, h)

	var assocID mapi.ObjectID

	require.NoError(t, h.client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		var err error

		assocID, err = tx.CreateObject(ctx, f.folderA, mapi.ObjectTypeMessage, 1, mapi.ObjectFlagAssociated)

		return err
	}))

	deleted, err := h.cascade.Delete(context.Background(), []mapi.ObjectID{f.folderA}, mapi.SkipAssociated|allContentFlags)
	require.NoError(t, err)

	for _, item := range deleted {
		require.NotEqual(t, assocID, item.ID)
	}

	require.NoError(t, h.client.Read(context.Background(), func(ctx context.Context, rd db.ReadOnly) error {
		object, err := rd.GetObject(ctx, assocID)
		require.NoError(t, err)
		require.False(t, object.Flags.Has(mapi.ObjectFlagDeleted))

		return nil
	}))
}
