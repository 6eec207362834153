package store

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Kopano-dev/kopano-core-sub010/internal/hash"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/sirupsen/logrus"
)

type onDiskStore struct {
	path     string
	gcm      cipher.AEAD
	cmp      Compressor
	sem      *Semaphore
	fallback Fallback
}

func NewCipher(pass []byte) (cipher.AEAD, error) {
	aes, err := aes.NewCipher(hash.Key(pass))
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(aes)
}

func NewOnDiskStore(path string, pass []byte, opt ...Option) (Store, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}

	gcm, err := NewCipher(pass)
	if err != nil {
		return nil, err
	}

	store := &onDiskStore{
		path: path,
		gcm:  gcm,
	}

	for _, opt := range opt {
		opt.config(store)
	}

	return store, nil
}

func (c *onDiskStore) Get(attachmentID mapi.ObjectID) ([]byte, error) {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	enc, err := os.ReadFile(filepath.Join(c.path, attachmentID.String()))
	if err != nil {
		return nil, err
	}

	b, err := c.gcm.Open(nil, enc[:c.gcm.NonceSize()], enc[c.gcm.NonceSize():], nil)
	if err != nil {
		if c.fallback != nil {
			return c.fallback.Read(c.gcm, bytes.NewReader(enc))
		}

		return nil, err
	}

	if c.cmp != nil {
		dec, err := c.cmp.Decompress(b)
		if err != nil {
			return nil, err
		}

		b = dec
	}

	return b, nil
}

func (c *onDiskStore) Set(attachmentID mapi.ObjectID, b []byte) error {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	nonce := make([]byte, c.gcm.NonceSize())

	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	if c.cmp != nil {
		enc, err := c.cmp.Compress(b)
		if err != nil {
			return err
		}

		b = enc
	}

	return os.WriteFile(
		filepath.Join(c.path, attachmentID.String()),
		c.gcm.Seal(nonce, nonce, b, nil),
		0o600,
	)
}

func (c *onDiskStore) Delete(attachmentIDs ...mapi.ObjectID) error {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	for _, attachmentID := range attachmentIDs {
		if err := os.RemoveAll(filepath.Join(c.path, attachmentID.String())); err != nil {
			return err
		}
	}

	return nil
}

func (c *onDiskStore) List() ([]mapi.ObjectID, error) {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	var ids []mapi.ObjectID

	if err := filepath.Walk(c.path, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		id, err := strconv.ParseUint(info.Name(), 10, 64)
		if err != nil {
			logrus.WithError(err).Errorf("Invalid id file in attachment store: %v", info.Name())

			return nil
		}

		ids = append(ids, mapi.ObjectID(id))

		return nil
	}); err != nil {
		return nil, err
	}

	return ids, nil
}

func (c *onDiskStore) Close() error {
	return nil
}

type OnDiskStoreBuilder struct{}

func (*OnDiskStoreBuilder) New(path, storeID string, passphrase []byte) (Store, error) {
	storePath := filepath.Join(path, storeID)

	return NewOnDiskStore(storePath, passphrase)
}

func (*OnDiskStoreBuilder) Delete(path, storeID string) error {
	storePath := filepath.Join(path, storeID)

	return os.RemoveAll(storePath)
}
