package mapi

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestChangeKey_RoundTrip(t *testing.T) {
	key := ChangeKey{Replica: uuid.New(), ChangeID: 1<<24 + 7}

	parsed, err := ParseChangeKey(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	_, err = ParseChangeKey(key.Bytes()[:19])
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPredecessorList_ReplacesPerReplica(t *testing.T) {
	replicaA := uuid.New()
	replicaB := uuid.New()

	var list PredecessorList

	list.Add(ChangeKey{Replica: replicaA, ChangeID: 1})
	list.Add(ChangeKey{Replica: replicaB, ChangeID: 5})
	list.Add(ChangeKey{Replica: replicaA, ChangeID: 3})

	// replicaA's second change replaced its first entry in place.
	require.Equal(t, 2, list.Len())
	require.True(t, list.Contains(replicaA, 3))
	require.True(t, list.Contains(replicaA, 2))
	require.False(t, list.Contains(replicaA, 4))
	require.True(t, list.Contains(replicaB, 5))
	require.False(t, list.Contains(uuid.New(), 1))
}

func TestPredecessorList_RoundTrip(t *testing.T) {
	var list PredecessorList

	list.Add(ChangeKey{Replica: uuid.New(), ChangeID: 10})
	list.Add(ChangeKey{Replica: uuid.New(), ChangeID: 20})

	parsed, err := ParsePredecessorList(list.Bytes())
	require.NoError(t, err)
	require.Equal(t, list, parsed)

	_, err = ParsePredecessorList([]byte{0xff, 0x01})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPredecessorList_TrimsOldestFirst(t *testing.T) {
	var list PredecessorList

	// Each entry encodes to 21 bytes, so the 13th pushes the list over the
	// 255-byte cap and the oldest entry must go.
	keys := make([]ChangeKey, 13)
	for i := range keys {
		keys[i] = ChangeKey{Replica: uuid.New(), ChangeID: uint32(i + 1)}
		list.Add(keys[i])
	}

	require.Equal(t, 12, list.Len())
	require.LessOrEqual(t, len(list.Bytes()), MaxPredecessorListSize)
	require.False(t, list.Contains(keys[0].Replica, 1))
	require.True(t, list.Contains(keys[12].Replica, 13))
}
