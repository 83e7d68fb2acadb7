package statussvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/tlv"
	"hz.tools/rf"
)

func newTestService() (*Service, *radiostate.State) {
	st := radiostate.New()
	st.Input.SampleRate = 48000
	svc := New(st, nil, nil)
	return svc, st
}

// TestDeltaStatusOnlyIncludesChangedTag reproduces spec scenario S5: two
// successive status emissions differing only in OUTPUT_DATA_PACKETS should
// have a second body containing only that tag plus the bookkeeping tags.
func TestDeltaStatusOnlyIncludesChangedTag(t *testing.T) {
	svc, st := newTestService()

	first := svc.buildStatus(true)
	require.NotEmpty(t, first)

	st.Output.Session.Packets++

	second := svc.buildStatus(false)
	_, items, err := tlv.DecodePacket(second)
	require.NoError(t, err)

	var sawPackets bool
	for _, it := range items {
		switch it.Tag {
		case tlv.OutputPacketsSent:
			sawPackets = true
		case tlv.CommandTag, tlv.Commands:
			// bookkeeping, always present
		default:
			t.Fatalf("unexpected tag %v in delta body", it.Tag)
		}
	}
	require.True(t, sawPackets)
}

func TestApplyCommandRadioFrequencyPrecedence(t *testing.T) {
	svc, st := newTestService()
	st.SDR.FirstLO = 14000000
	require.NoError(t, st.SetFreq(14200000, nil))

	var buf []byte
	buf = tlv.EncodeInt(buf, tlv.RadioFrequency, 14250000)
	buf = tlv.EncodeInt(buf, tlv.SecondLOFrequency, -60000)
	buf = tlv.EncodeEOL(buf)
	packet := tlv.EncodePacket(tlv.KindCommand, buf)

	require.NoError(t, svc.applyCommand(packet))
	require.EqualValues(t, 14250000, st.Tune.Freq)
	require.EqualValues(t, -60000, st.SecondLO.Freq)
}

func TestApplyCommandSecondLOHoldsFirstLO(t *testing.T) {
	svc, st := newTestService()
	st.SDR.FirstLO = 14000000
	require.NoError(t, st.SetFreq(14200000, nil))
	firstLOBefore := st.SDR.FirstLO

	var buf []byte
	buf = tlv.EncodeInt(buf, tlv.SecondLOFrequency, 10000)
	buf = tlv.EncodeEOL(buf)
	packet := tlv.EncodePacket(tlv.KindCommand, buf)

	require.NoError(t, svc.applyCommand(packet))
	require.EqualValues(t, firstLOBefore, st.SDR.FirstLO)
	require.EqualValues(t, 10000, st.SecondLO.Freq)
}

func TestApplyCommandRejectsInvertedFilterEdges(t *testing.T) {
	svc, st := newTestService()
	st.Filter.Low = -5000
	st.Filter.High = 5000

	var buf []byte
	buf = tlv.EncodeInt(buf, tlv.LowEdge, 6000)
	buf = tlv.EncodeInt(buf, tlv.HighEdge, 5000)
	buf = tlv.EncodeEOL(buf)
	packet := tlv.EncodePacket(tlv.KindCommand, buf)

	err := svc.applyCommand(packet)
	require.Error(t, err)
	require.EqualValues(t, -5000, st.Filter.Low)
	require.EqualValues(t, 5000, st.Filter.High)
}

func TestApplyMetadataUpdatesSDRFields(t *testing.T) {
	svc, st := newTestService()
	st.Tune.Freq = 14200000
	st.SDR.FirstLO = 14000000
	require.NoError(t, st.SetFreq(14200000, nil))

	var buf []byte
	buf = tlv.EncodeInt(buf, tlv.FirstLOFrequency, 14100000)
	buf = tlv.EncodeUint(buf, tlv.LNAGain, 20)
	buf = tlv.EncodeEOL(buf)
	packet := tlv.EncodePacket(tlv.KindStatus, buf)

	svc.applyMetadata(packet, nil)
	require.EqualValues(t, 14100000, st.SDR.FirstLO)
	require.EqualValues(t, 20, st.SDR.LNAGain)
	require.EqualValues(t, rf.Hz(14200000), st.Tune.Freq)
}
