package store

import (
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type Store interface {
	Get(attachmentID mapi.ObjectID) ([]byte, error)
	Set(attachmentID mapi.ObjectID, payload []byte) error
	Delete(attachmentID ...mapi.ObjectID) error
	List() ([]mapi.ObjectID, error)
	Close() error
}

// Builder creates one store per message store, named by the store's id.
type Builder interface {
	New(dir, storeID string, passphrase []byte) (Store, error)
	Delete(dir, storeID string) error
}
