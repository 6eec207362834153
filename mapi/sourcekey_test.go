package mapi

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSourceKey(t *testing.T) {
	replica := uuid.New()

	key := NewSourceKey(replica, 42)
	require.Len(t, key, ServerSourceKeySize)

	gotReplica, ok := key.Replica()
	require.True(t, ok)
	require.Equal(t, replica, gotReplica)

	counter, ok := key.Counter()
	require.True(t, ok)
	require.Equal(t, uint64(42), counter)
}

func TestSourceKey_CounterTruncation(t *testing.T) {
	// Only the low 6 bytes of the counter survive.
	key := NewSourceKey(uuid.New(), 0xaa_ffffffffffff)

	counter, ok := key.Counter()
	require.True(t, ok)
	require.Equal(t, uint64(0xffffffffffff), counter)
}

func TestSourceKey_Compare(t *testing.T) {
	replica := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	a := NewSourceKey(replica, 1)
	b := NewSourceKey(replica, 2)

	require.Negative(t, a.Compare(b))
	require.Positive(t, b.Compare(a))
	require.Zero(t, a.Compare(NewSourceKey(replica, 1)))

	// A foreign key that is a strict prefix sorts before the longer key.
	require.Negative(t, a[:8].Compare(a))
}

func TestSourceKey_Foreign(t *testing.T) {
	foreign := SourceKey{0x01, 0x02, 0x03}

	_, ok := foreign.Replica()
	require.False(t, ok)

	_, ok = foreign.Counter()
	require.False(t, ok)

	require.False(t, foreign.IsZero())
	require.True(t, SourceKey(nil).IsZero())
}
