// Package fallback_v0 reads and writes attachment files in the layout the
// previous server generation used, so an upgraded server keeps serving
// payloads written before the migration.
package fallback_v0

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"os"

	"github.com/Kopano-dev/kopano-core-sub010/store"
)

type onDiskStoreV0 struct {
	compressor Compressor
}

func NewOnDiskStoreV0() store.Fallback {
	return &onDiskStoreV0{}
}

func NewOnDiskStoreV0WithCompressor(compressor Compressor) store.Fallback {
	return &onDiskStoreV0{compressor: compressor}
}

func (v0 *onDiskStoreV0) Read(gcm cipher.AEAD, reader io.Reader) ([]byte, error) {
	enc, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if len(enc) < gcm.NonceSize() {
		return nil, errors.New("attachment file shorter than its nonce")
	}

	dec, err := gcm.Open(nil, enc[:gcm.NonceSize()], enc[gcm.NonceSize():], nil)
	if err != nil {
		return nil, err
	}

	if v0.compressor == nil {
		return dec, nil
	}

	return v0.compressor.Decompress(dec)
}

func (v0 *onDiskStoreV0) Write(gcm cipher.AEAD, filepath string, data []byte) error {
	if v0.compressor != nil {
		cmp, err := v0.compressor.Compress(data)
		if err != nil {
			return err
		}

		data = cmp
	}

	nonce := make([]byte, gcm.NonceSize())

	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	return os.WriteFile(filepath, gcm.Seal(nonce, nonce, data, nil), 0o600)
}
