package mapi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ChangeKey identifies one change made by one replica: the replica GUID
// followed by the 4-byte big-endian id of the change record.
type ChangeKey struct {
	Replica  uuid.UUID
	ChangeID uint32
}

const changeKeySize = 20

func (k ChangeKey) Bytes() []byte {
	buf := make([]byte, changeKeySize)

	copy(buf, k.Replica[:])
	binary.BigEndian.PutUint32(buf[16:], k.ChangeID)

	return buf
}

func (k ChangeKey) IsZero() bool {
	return k.Replica == uuid.UUID{} && k.ChangeID == 0
}

func ParseChangeKey(b []byte) (ChangeKey, error) {
	if len(b) != changeKeySize {
		return ChangeKey{}, fmt.Errorf("%w: change key must be %v bytes, got %v", ErrInvalidParameter, changeKeySize, len(b))
	}

	var key ChangeKey

	copy(key.Replica[:], b[:16])
	key.ChangeID = binary.BigEndian.Uint32(b[16:])

	return key, nil
}

// PredecessorList is the per-object causal history: one entry per replica
// that ever changed the object, newest payload winning per replica GUID. The
// wire form is a sequence of {1-byte length, GUID, payload} entries capped
// at MaxPredecessorListSize bytes in total.
type PredecessorList struct {
	entries []predecessorEntry
}

type predecessorEntry struct {
	replica uuid.UUID
	payload []byte
}

const MaxPredecessorListSize = 255

func ParsePredecessorList(b []byte) (PredecessorList, error) {
	var list PredecessorList

	for len(b) > 0 {
		size := int(b[0])
		if size < 16 || len(b) < 1+size {
			return PredecessorList{}, fmt.Errorf("%w: truncated predecessor list entry", ErrInvalidParameter)
		}

		var entry predecessorEntry

		copy(entry.replica[:], b[1:17])
		entry.payload = append([]byte(nil), b[17:1+size]...)

		list.entries = append(list.entries, entry)

		b = b[1+size:]
	}

	return list, nil
}

// Add records key in the list. An existing entry for the same replica GUID
// is replaced in place; otherwise the key is appended. Oldest entries are
// dropped until the encoded list fits MaxPredecessorListSize.
func (l *PredecessorList) Add(key ChangeKey) {
	var payload [4]byte

	binary.BigEndian.PutUint32(payload[:], key.ChangeID)

	for i := range l.entries {
		if l.entries[i].replica == key.Replica {
			l.entries[i].payload = payload[:]
			l.trim()

			return
		}
	}

	l.entries = append(l.entries, predecessorEntry{replica: key.Replica, payload: payload[:]})
	l.trim()
}

func (l *PredecessorList) trim() {
	for l.size() > MaxPredecessorListSize && len(l.entries) > 1 {
		l.entries = l.entries[1:]
	}
}

func (l PredecessorList) size() int {
	var total int

	for _, e := range l.entries {
		total += 1 + 16 + len(e.payload)
	}

	return total
}

func (l PredecessorList) Len() int {
	return len(l.entries)
}

// Contains reports whether the list records a change by replica with an id
// at least changeID, i.e. whether that change is dominated by this history.
func (l PredecessorList) Contains(replica uuid.UUID, changeID uint32) bool {
	for _, e := range l.entries {
		if e.replica != replica || len(e.payload) != 4 {
			continue
		}

		return binary.BigEndian.Uint32(e.payload) >= changeID
	}

	return false
}

func (l PredecessorList) Bytes() []byte {
	buf := make([]byte, 0, l.size())

	for _, e := range l.entries {
		buf = append(buf, byte(16+len(e.payload)))
		buf = append(buf, e.replica[:]...)
		buf = append(buf, e.payload...)
	}

	return buf
}
