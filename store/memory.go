package store

import (
	"errors"
	"sync"

	"github.com/Kopano-dev/kopano-core-sub010/mapi"
)

type inMemoryStore struct {
	data map[mapi.ObjectID][]byte
	lock sync.RWMutex
}

func NewInMemoryStore() Store {
	return &inMemoryStore{
		data: make(map[mapi.ObjectID][]byte),
	}
}

func (c *inMemoryStore) Get(attachmentID mapi.ObjectID) ([]byte, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	payload, ok := c.data[attachmentID]
	if !ok {
		return nil, errors.New("no such attachment in store")
	}

	return payload, nil
}

func (c *inMemoryStore) Set(attachmentID mapi.ObjectID, payload []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.data[attachmentID] = payload

	return nil
}

func (c *inMemoryStore) Delete(ids ...mapi.ObjectID) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, id := range ids {
		delete(c.data, id)
	}

	return nil
}

func (c *inMemoryStore) List() ([]mapi.ObjectID, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	ids := make([]mapi.ObjectID, 0, len(c.data))

	for id := range c.data {
		ids = append(ids, id)
	}

	return ids, nil
}

// InMemoryStoreBuilder creates stores that keep all attachment payloads in
// memory. Meant for tests.
type InMemoryStoreBuilder struct{}

func (InMemoryStoreBuilder) New(string, string, []byte) (Store, error) {
	return NewInMemoryStore(), nil
}

func (InMemoryStoreBuilder) Delete(string, string) error {
	return nil
}

func (c *inMemoryStore) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.data = make(map[mapi.ObjectID][]byte)

	return nil
}
