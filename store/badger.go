package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kopano-dev/kopano-core-sub010/internal/hash"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/dgraph-io/badger/v3"
	"github.com/sirupsen/logrus"
)

type BadgerStore struct {
	db       *badger.DB
	gcExitCh chan struct{}
	wg       sync.WaitGroup
}

func NewBadgerStore(path string, storeID string, passphrase []byte) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(path, storeID)).
		WithLogger(logrus.StandardLogger()).
		WithLoggingLevel(badger.ERROR).
		WithEncryptionKey(hash.Key(passphrase)).
		WithIndexCacheSize(128 * 1024 * 1024),
	)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:       db,
		gcExitCh: make(chan struct{}),
	}

	go store.startGCCollector()

	return store, nil
}

func (b *BadgerStore) startGCCollector() {
	// Garbage collection needs to be run manually by us at some point.
	// See https://dgraph.io/docs/badger/get-started/#garbage-collection for more details.
	b.wg.Add(1)
	defer b.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			{
			again:
				if err := b.db.RunValueLogGC(0.5); err == nil {
					goto again
				}
			}

		case <-b.gcExitCh:
			return
		}
	}
}

func badgerKey(attachmentID mapi.ObjectID) []byte {
	var key [8]byte

	binary.BigEndian.PutUint64(key[:], uint64(attachmentID))

	return key[:]
}

func (b *BadgerStore) Get(attachmentID mapi.ObjectID) ([]byte, error) {
	var data []byte

	if err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(attachmentID))
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return data, nil
}

func (b *BadgerStore) Set(attachmentID mapi.ObjectID, payload []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(attachmentID), payload)
	})
}

func (b *BadgerStore) Delete(attachmentIDs ...mapi.ObjectID) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, id := range attachmentIDs {
			if err := txn.Delete(badgerKey(id)); err != nil {
				return err
			}
		}

		return nil
	})
}

func (b *BadgerStore) List() ([]mapi.ObjectID, error) {
	var ids []mapi.ObjectID

	if err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) != 8 {
				continue
			}

			ids = append(ids, mapi.ObjectID(binary.BigEndian.Uint64(key)))
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return ids, nil
}

func (b *BadgerStore) Close() error {
	close(b.gcExitCh)
	b.wg.Wait()

	return b.db.Close()
}

type BadgerStoreBuilder struct{}

func (*BadgerStoreBuilder) New(directory, storeID string, encryptionPassphrase []byte) (Store, error) {
	return NewBadgerStore(directory, storeID, encryptionPassphrase)
}

func (*BadgerStoreBuilder) Delete(directory, storeID string) error {
	return os.RemoveAll(filepath.Join(directory, storeID))
}
