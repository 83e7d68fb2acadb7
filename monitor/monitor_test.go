package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTableIngestCreatesSessionOnFirstPacket(t *testing.T) {
	tbl := NewTable(16, time.Minute)
	key := SessionKey{SenderAddr: "239.1.2.3:5004", SSRC: 42}
	now := time.Unix(1000, 0)

	s := tbl.Ingest(key, []float32{0.1, 0.2, 0.3}, now)
	require.Equal(t, key, s.Key)
	require.Equal(t, uint64(1), s.PacketsSeen)
	require.Equal(t, 1, tbl.Len())

	got, ok := tbl.Lookup(key)
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestSessionRingOverwritesOldestOnOverrun(t *testing.T) {
	s := newSession(SessionKey{}, 4)
	s.Write([]float32{1, 2, 3, 4})
	s.Write([]float32{5, 6})

	got := s.Drain()
	require.Equal(t, []float32{3, 4, 5, 6}, got)
}

func TestSessionDrainEmptiesRing(t *testing.T) {
	s := newSession(SessionKey{}, 8)
	s.Write([]float32{1, 2, 3})

	first := s.Drain()
	require.Equal(t, []float32{1, 2, 3}, first)

	second := s.Drain()
	require.Nil(t, second)
}

func TestTableEvictRemovesStaleSessions(t *testing.T) {
	tbl := NewTable(16, 10*time.Second)
	key := SessionKey{SenderAddr: "239.1.2.3:5004", SSRC: 7}
	tbl.Ingest(key, []float32{0}, time.Unix(1000, 0))

	evicted := tbl.Evict(time.Unix(1005, 0))
	require.Empty(t, evicted)
	require.Equal(t, 1, tbl.Len())

	evicted = tbl.Evict(time.Unix(1020, 0))
	require.Equal(t, []SessionKey{key}, evicted)
	require.Equal(t, 0, tbl.Len())
}

func TestTableIngestReusesExistingSessionForSameKey(t *testing.T) {
	tbl := NewTable(16, time.Minute)
	key := SessionKey{SenderAddr: "239.1.2.3:5004", SSRC: 9}

	first := tbl.Ingest(key, []float32{1}, time.Unix(0, 0))
	second := tbl.Ingest(key, []float32{2}, time.Unix(1, 0))

	require.Same(t, first, second)
	require.Equal(t, uint64(2), second.PacketsSeen)
	require.Equal(t, 1, tbl.Len())
}
