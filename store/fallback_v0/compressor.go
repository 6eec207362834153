package fallback_v0

// Compressor mirrors the payload transform the old layout applied before
// encryption.
type Compressor interface {
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}
