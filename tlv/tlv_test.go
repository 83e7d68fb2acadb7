package tlv

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeUintZeroHasLenZero(t *testing.T) {
	buf := EncodeUint(nil, Gain, 0)
	assert.Equal(t, []byte{byte(Gain), 0}, buf)
}

func TestEncodeDecodeEOLStops(t *testing.T) {
	buf := EncodeUint(nil, Gain, 5)
	buf = EncodeEOL(buf)
	buf = EncodeUint(buf, Headroom, 9) // must not be decoded: after EOL
	items, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Gain, items[0].Tag)
}

func TestDecodeStopsOnShortBuffer(t *testing.T) {
	buf := []byte{byte(Gain), 4, 1, 2} // claims 4 bytes, only 2 present
	items, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeSkipsUnknownTagByLength(t *testing.T) {
	var buf []byte
	buf = append(buf, 250, 3, 0xaa, 0xbb, 0xcc) // unknown tag, skip by length
	buf = EncodeUint(buf, Gain, 42)
	buf = EncodeEOL(buf)
	items, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.EqualValues(t, 250, items[0].Tag)
	assert.Equal(t, Gain, items[1].Tag)
	assert.EqualValues(t, 42, items[1].Uint())
}

// S2. TLV round-trip.
func TestScenarioS2RoundTrip(t *testing.T) {
	var buf []byte
	buf = EncodeFloat64(buf, RadioFrequency, 14.250e6)
	buf = EncodeFloat64(buf, SecondLOFrequency, -48000.0)
	buf = EncodeFloat32(buf, KaiserBeta, 11.0)
	buf = EncodeBool(buf, PLLEnable, true)
	buf = EncodeEOL(buf)

	items, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.InDelta(t, 1.425e7, items[0].Float64(), 1e-6)
	assert.InDelta(t, -48000.0, items[1].Float64(), 1e-6)
	assert.InDelta(t, 11.0, float64(items[2].Float32()), 1e-6)
	assert.True(t, items[3].Bool())
}

func TestSocketRoundTripIPv4(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 42), Port: 5004}
	buf := EncodeSocket(nil, InputDataSourceSocket, addr)
	items, err := Decode(append(buf, byte(EOL)))
	require.NoError(t, err)
	require.Len(t, items, 1)
	got, err := items[0].Socket()
	require.NoError(t, err)
	assert.True(t, got.IP.Equal(addr.IP))
	assert.Equal(t, addr.Port, got.Port)
}

func TestSocketRoundTripIPv6Truncates(t *testing.T) {
	ip := net.ParseIP("2001:db8:1234:5678:9999:aaaa:bbbb:cccc")
	addr := &net.UDPAddr{IP: ip, Port: 4000}
	buf := EncodeSocket(nil, InputDataSourceSocket, addr)
	items, err := Decode(append(buf, byte(EOL)))
	require.NoError(t, err)
	got, err := items[0].Socket()
	require.NoError(t, err)
	// Only the first 8 bytes of the v6 address survive the round trip.
	assert.True(t, ip[:8].Equal(got.IP[:8]))
	assert.Equal(t, addr.Port, got.Port)
}

// Property 4: decode(encode(x)) == x for integers across all
// representable widths; zero encodes to len=0.
func TestPropertyIntegerRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Uint64().Draw(t, "x")
		buf := EncodeUint(nil, Gain, x)
		buf = EncodeEOL(buf)
		items, err := Decode(buf)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, x, items[0].Uint())
		if x == 0 {
			require.Equal(t, 0, len(items[0].Value))
		}
	})
}

func TestDeltaCacheFiltersUnchanged(t *testing.T) {
	c := NewCache()
	full := []Item{
		{Tag: CommandTag, Value: []byte{1}},
		{Tag: Commands, Value: []byte{1}},
		{Tag: OutputSamplesSent, Value: []byte{0, 0, 0, 1}},
	}
	c.Record(full)

	// S5: two emissions differ only in OUTPUT_DATA_PACKETS equivalent.
	next := []Item{
		{Tag: CommandTag, Value: []byte{1}},
		{Tag: Commands, Value: []byte{1}},
		{Tag: OutputSamplesSent, Value: []byte{0, 0, 0, 2}},
	}
	delta := c.Filter(next)
	require.Len(t, delta, 1)
	assert.Equal(t, OutputSamplesSent, delta[0].Tag)
}

func TestDeltaCacheResetForcesFull(t *testing.T) {
	c := NewCache()
	items := []Item{{Tag: Gain, Value: []byte{1}}}
	c.Record(items)
	c.Reset()
	delta := c.Filter(items)
	require.Len(t, delta, 1)
}
