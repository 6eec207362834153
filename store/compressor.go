package store

// A Compressor transforms attachment payloads before they are encrypted and
// after they are decrypted.
type Compressor interface {
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}
