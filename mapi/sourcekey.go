package mapi

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// SourceKey is the stable, replica-unique binary identifier of an object.
// Keys minted by this server are a 16-byte replica GUID followed by a 6-byte
// little-endian counter; keys supplied by other replicas may have any length
// and are treated as opaque.
type SourceKey []byte

// ServerSourceKeySize is the size of a key minted by this server.
const ServerSourceKeySize = 22

func NewSourceKey(replica uuid.UUID, counter uint64) SourceKey {
	key := make(SourceKey, ServerSourceKeySize)

	copy(key, replica[:])

	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], counter)
	copy(key[16:], buf[:6])

	return key
}

// Compare orders keys byte-wise; on a length mismatch the shorter key sorts
// before any longer key it is a prefix of.
func (s SourceKey) Compare(other SourceKey) int {
	return bytes.Compare(s, other)
}

func (s SourceKey) Equal(other SourceKey) bool {
	return bytes.Equal(s, other)
}

func (s SourceKey) IsZero() bool {
	return len(s) == 0
}

// Replica reports the replica GUID of a server-minted key.
func (s SourceKey) Replica() (uuid.UUID, bool) {
	if len(s) != ServerSourceKeySize {
		return uuid.UUID{}, false
	}

	var replica uuid.UUID

	copy(replica[:], s[:16])

	return replica, true
}

// Counter reports the local counter of a server-minted key.
func (s SourceKey) Counter() (uint64, bool) {
	if len(s) != ServerSourceKeySize {
		return 0, false
	}

	var buf [8]byte

	copy(buf[:], s[16:])

	return binary.LittleEndian.Uint64(buf[:]), true
}

func (s SourceKey) String() string {
	return hex.EncodeToString(s)
}
