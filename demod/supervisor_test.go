package demod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hz.tools/radiod/channelizer"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/tlv"
)

func testEngineFactory(kind tlv.DemodKind) (*channelizer.Engine, error) {
	cfg := channelizer.Config{
		L:        4,
		M:        5,
		Decimate: 2,
		Mode:     channelizer.Complex,
		Response: make([]complex128, 8),
	}
	for i := range cfg.Response {
		cfg.Response[i] = complex(1, 0)
	}
	return channelizer.New(cfg)
}

func testDemodFactory(kind tlv.DemodKind, state *radiostate.State, sink Sink) (Demodulator, error) {
	switch kind {
	case tlv.DemodAM:
		return NewAM(state, sink), nil
	case tlv.DemodFM:
		return NewFM(state, sink, 48000), nil
	default:
		return NewLinear(state, sink, 48000), nil
	}
}

// TestSupervisorModeSwitch reproduces spec scenario S6: starting in AM
// RUNNING, a command sets DEMOD_TYPE=LINEAR with PLL_ENABLE; within one
// SwitchTo call the AM demodulator is torn down, the channelizer is
// reconfigured, and the new demodulator comes up with pll_lock cleared.
func TestSupervisorModeSwitch(t *testing.T) {
	state := radiostate.New()
	sink := &captureSink{}
	sup, err := NewSupervisor(state, sink, testDemodFactory, testEngineFactory, tlv.DemodAM)
	require.NoError(t, err)
	require.Equal(t, tlv.DemodAM, sup.Kind())

	state.Mu.Lock()
	state.Opt.PLL = true
	state.Sig.PLLLock = true
	state.Mu.Unlock()

	require.NoError(t, sup.SwitchTo(tlv.DemodLinear))
	require.Equal(t, tlv.DemodLinear, sup.Kind())

	state.Mu.Lock()
	kind := state.DemodKind
	lock := state.Sig.PLLLock
	state.Mu.Unlock()
	require.Equal(t, tlv.DemodLinear, kind)
	require.False(t, lock)

	_, ok := sup.active.(*Linear)
	require.True(t, ok)
}

func TestSupervisorSwitchToSameKindIsNoop(t *testing.T) {
	state := radiostate.New()
	sink := &captureSink{}
	sup, err := NewSupervisor(state, sink, testDemodFactory, testEngineFactory, tlv.DemodAM)
	require.NoError(t, err)
	before := sup.active

	require.NoError(t, sup.SwitchTo(tlv.DemodAM))
	require.Same(t, before, sup.active)
}

func TestSupervisorReconfigureRebuildsEngine(t *testing.T) {
	state := radiostate.New()
	sink := &captureSink{}
	sup, err := NewSupervisor(state, sink, testDemodFactory, testEngineFactory, tlv.DemodAM)
	require.NoError(t, err)
	before := sup.Engine()

	require.NoError(t, sup.Reconfigure())
	require.NotSame(t, before, sup.Engine())
}
