package store

import (
	"sync"
	"sync/atomic"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type syncRef struct {
	lock    sync.RWMutex
	counter int32
}

// WriteControlledStore ensures that a given file on disk can safely be accessed by multiple readers and only
// one writer. Internally we maintain a list of RWLocks per attachment ID.
type WriteControlledStore struct {
	impl Store

	lock       sync.Mutex
	entryTable map[mapi.ObjectID]*syncRef
	lockPool   []*syncRef
}

func NewWriteControlledStore(impl Store) *WriteControlledStore {
	return &WriteControlledStore{
		impl:       impl,
		entryTable: make(map[mapi.ObjectID]*syncRef),
	}
}

func (w *WriteControlledStore) acquireSyncRef(id mapi.ObjectID) *syncRef {
	w.lock.Lock()
	defer w.lock.Unlock()

	v, ok := w.entryTable[id]
	if !ok {
		var s *syncRef

		if len(w.lockPool) != 0 {
			s = w.lockPool[0]
			s.counter = 1
			w.lockPool = w.lockPool[1:]
		} else {
			s = &syncRef{counter: 1}
		}

		w.entryTable[id] = s

		return s
	}

	atomic.AddInt32(&v.counter, 1)

	return v
}

func (w *WriteControlledStore) releaseSyncRef(id mapi.ObjectID, ref *syncRef) {
	if atomic.AddInt32(&ref.counter, -1) <= 0 {
		w.lock.Lock()
		defer w.lock.Unlock()

		if atomic.LoadInt32(&ref.counter) <= 0 {
			delete(w.entryTable, id)
			w.lockPool = append(w.lockPool, ref)
		}
	}
}

func (w *WriteControlledStore) Get(attachmentID mapi.ObjectID) ([]byte, error) {
	syncRef := w.acquireSyncRef(attachmentID)
	defer w.releaseSyncRef(attachmentID, syncRef)

	syncRef.lock.RLock()
	defer syncRef.lock.RUnlock()

	return w.impl.Get(attachmentID)
}

func (w *WriteControlledStore) Set(attachmentID mapi.ObjectID, payload []byte) error {
	syncRef := w.acquireSyncRef(attachmentID)
	defer w.releaseSyncRef(attachmentID, syncRef)

	syncRef.lock.Lock()
	defer syncRef.lock.Unlock()

	return w.impl.Set(attachmentID, payload)
}

// SetUnchecked allows the user to bypass lock access. This will only work if you can guarantee that the data being
// set does not previously exist (e.g: a freshly created attachment).
func (w *WriteControlledStore) SetUnchecked(attachmentID mapi.ObjectID, payload []byte) error {
	return w.impl.Set(attachmentID, payload)
}

func (w *WriteControlledStore) Delete(attachmentID ...mapi.ObjectID) error {
	for _, id := range attachmentID {
		if err := func() error {
			syncRef := w.acquireSyncRef(id)
			defer w.releaseSyncRef(id, syncRef)

			syncRef.lock.Lock()
			defer syncRef.lock.Unlock()

			return w.impl.Delete(id)
		}(); err != nil {
			return err
		}
	}

	return nil
}

func (w *WriteControlledStore) Close() error {
	return w.impl.Close()
}

func (w *WriteControlledStore) List() ([]mapi.ObjectID, error) {
	return w.impl.List()
}

type WriteControlledStoreBuilder struct {
	builder Builder
}

func NewWriteControlledStoreBuilder(builder Builder) *WriteControlledStoreBuilder {
	return &WriteControlledStoreBuilder{builder: builder}
}

func (w *WriteControlledStoreBuilder) New(dir, storeID string, passphrase []byte) (Store, error) {
	impl, err := w.builder.New(dir, storeID, passphrase)
	if err != nil {
		return nil, err
	}

	return NewWriteControlledStore(impl), nil
}

func (w *WriteControlledStoreBuilder) Delete(dir, storeID string) error {
	return w.builder.Delete(dir, storeID)
}
