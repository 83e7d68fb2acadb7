// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package radiostate owns the demodulator state (DS): the single record
// holding every tunable and measured quantity, its tuning invariants, and
// the mode preset table. It replaces the source's module-level globals
// with an owned record passed explicitly to each goroutine, per the
// re-architecture guidance in spec.md §9.
package radiostate

import (
	"net"
	"sync"
	"time"

	"hz.tools/radiod/oscillator"
	"hz.tools/radiod/rtp"
	"hz.tools/radiod/tlv"
	"hz.tools/rf"
)

// Input groups the ingress sample stream's identity and RTP bookkeeping.
type Input struct {
	SampleRate         uint
	Description        string
	Session            rtp.SessionState
	MetaPackets        uint64
	SourceAddr         *net.UDPAddr
	DestAddr           *net.UDPAddr
	MetadataSourceAddr *net.UDPAddr
	MetadataDestAddr   *net.UDPAddr
}

// SDR groups front-end state reported over the metadata channel.
type SDR struct {
	FirstLO        rf.Hz
	SampleRate     uint
	LNAGain        uint8
	MixerGain      uint8
	IFGain         uint8
	DCOffsetI      float32
	DCOffsetQ      float32
	IQImbalance    float32
	IQPhaseError   float32
	Calibration    float64 // ppm-scale correction; see Tune invariant
	GPSTime        time.Time
	DirectConv     bool
}

// Tune groups the user-visible tuning state.
type Tune struct {
	Freq rf.Hz // user-visible carrier, see Invariants
	Shift rf.Hz // post-detection shift
	Item  int   // UI cursor position
	Step  int   // UI cursor step size
	Lock  bool  // hardware tuner pinned
}

// Oscillator groups one NCO's commanded frequency and rate alongside its
// runtime phase accumulator.
type Oscillator struct {
	Freq rf.Hz
	Rate float64 // Hz/sec
	NCO  *oscillator.NCO
}

// Filter groups the channelizer's configuration.
type Filter struct {
	L           int
	M           int
	Low         rf.Hz
	High        rf.Hz
	KaiserBeta  float64
	Interpolate int
	Decimate    int
	ISB         bool
}

// AGC groups the automatic gain control parameters, all in amplitude-ratio
// or output-sample terms (never the dual Hz/sec and ratio/sec units
// observed in the source's control process; see DESIGN.md).
type AGC struct {
	Gain         float64
	Headroom     float64
	AttackRate   float64 // ratio per output sample, < 1
	RecoveryRate float64 // ratio per output sample, > 1
	Hangtime     int     // output samples
	MaxGain      float64 // hard ceiling; 0 means unbounded
	hangCounter  int
}

// Opt groups the demodulator option flags.
type Opt struct {
	PLL    bool
	Square bool
	Flat   bool
	AGC    bool
	Env    bool
}

// Sig groups the signal measurements published by the active demodulator.
type Sig struct {
	IFPower    float64
	BBPower    float64
	N0         float64
	SNR        float64
	FOffset    float64
	PDeviation float64
	CPhase     float64
	PLFreq     float64
	PLLLock    bool
}

// Output groups the egress RTP session and PCM stream parameters.
type Output struct {
	Session     rtp.SessionState
	SampleRate  uint
	Channels    int
	Commands    uint64
	CommandTag  uint32
	Level       float64
	SampleCount uint64
	SourceAddr  *net.UDPAddr
	DestAddr    *net.UDPAddr
}

// State is the demodulator state block (DS): one record per radio
// process, created at startup, populated from a preset, and mutated by
// the status-service goroutine and the active demodulator goroutine.
// Fields are single-writer-per-group as documented in spec.md §5; Mu
// guards the cross-group edges (SDR-status-updated, demod-type-changed).
type State struct {
	Mu   sync.Mutex
	Cond *sync.Cond

	Input      Input
	SDR        SDR
	Tune       Tune
	SecondLO   Oscillator
	Doppler    Oscillator
	Filter     Filter
	AGC        AGC
	Opt        Opt
	Sig        Sig
	Output     Output
	DemodKind  tlv.DemodKind

	// sdrUpdated and demodChanged are edge counters bumped under Mu and
	// observed by Cond waiters; see WaitSDRUpdate/WaitDemodChange.
	sdrUpdated   uint64
	demodChanged uint64

	terminate bool
}

// New returns a State with its oscillators allocated and its condition
// variable bound to its own mutex.
func New() *State {
	s := &State{
		SecondLO: Oscillator{NCO: oscillator.New()},
		Doppler:  Oscillator{NCO: oscillator.New()},
	}
	s.Cond = sync.NewCond(&s.Mu)
	return s
}

// SignalSDRUpdate marks the SDR-status-updated edge and wakes waiters.
// Callers must hold Mu for writing when calling this.
func (s *State) SignalSDRUpdate() {
	s.sdrUpdated++
	s.Cond.Broadcast()
}

// SignalDemodChange marks the demod-type-changed edge and wakes waiters.
// Callers must hold Mu for writing when calling this.
func (s *State) SignalDemodChange() {
	s.demodChanged++
	s.Cond.Broadcast()
}

// Terminate raises the shutdown flag observed by every goroutine's block
// loop. Safe to call from a signal handler: it only flips a bool under a
// lock, never calling into stateful code, per spec.md §5 "Cancellation".
func (s *State) Terminate() {
	s.Mu.Lock()
	s.terminate = true
	s.Mu.Unlock()
	s.Cond.Broadcast()
}

// Terminating reports whether shutdown has been requested.
func (s *State) Terminating() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.terminate
}
