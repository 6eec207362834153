package hash

import "crypto/sha256"

// Key derives a fixed-size cipher key from an arbitrary passphrase.
func Key(passphrase []byte) []byte {
	sum := sha256.Sum256(passphrase)

	return sum[:]
}
