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

// Package statussvc runs the single status-service goroutine (spec.md
// §4.10): it multiplexes the SDR metadata socket and the user command
// socket, applies commands to the shared radio state under the tuning
// logic's precedence rules, and emits full or delta TLV status packets on
// a fixed cycle.
package statussvc

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"

	"hz.tools/radiod/config"
	"hz.tools/radiod/demod"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/tlv"
	"hz.tools/rf"
)

// fullEvery is the cycle count between unconditional full status emissions
// (spec.md §4.10 "full every 10th cycle").
const fullEvery = 10

// Service owns the cycle state: the cache used for delta compression, the
// cycle counter, and the demodulator supervisor it drives on a DEMOD_TYPE
// command.
type Service struct {
	State      *radiostate.State
	Supervisor *demod.Supervisor
	Logger     *log.Logger
	Dump       bool

	// UpdateInterval is the poll/select timeout driving runCycle, set from
	// config.Config.UpdateInterval (spec.md §6). A value <= 0 disables
	// periodic status emission: the cycle still drains the metadata and
	// command sockets, but only ever emits a status packet in response to
	// an applied command, never on the timer.
	UpdateInterval time.Duration

	MetaRead    func(buf []byte, deadline time.Time) (int, *net.UDPAddr, error)
	CommandRead func(buf []byte, deadline time.Time) (int, *net.UDPAddr, error)
	StatusWrite func(buf []byte) error

	cache    *tlv.Cache
	cycle    uint64
	booted   bool
	commands uint64
}

// New returns a Service ready to Run, with UpdateInterval defaulted to
// config.DefaultUpdateInterval; callers wanting the configured value
// should set svc.UpdateInterval = cfg.UpdateInterval after New.
func New(state *radiostate.State, supervisor *demod.Supervisor, logger *log.Logger) *Service {
	return &Service{
		State:          state,
		Supervisor:     supervisor,
		Logger:         logger,
		UpdateInterval: config.DefaultUpdateInterval,
		cache:          tlv.NewCache(),
	}
}

// Run executes the status-service cycle in a loop until ctx is cancelled
// or the shared state's terminate flag is raised, per spec.md §4.10 and
// §5's "Status" thread description.
func (s *Service) Run(ctx context.Context) error {
	for !s.State.Terminating() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.runCycle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// socketPollInterval bounds how long a cycle with periodic emission disabled
// (UpdateInterval <= 0) still blocks on the metadata/command sockets, so the
// loop keeps noticing ctx cancellation and applying commands promptly even
// though it never emits status on its own timer.
const socketPollInterval = 120 * time.Millisecond

func (s *Service) runCycle(ctx context.Context) error {
	interval := s.UpdateInterval
	if interval <= 0 {
		interval = socketPollInterval
	}
	deadline := time.Now().Add(interval)
	forceFull := false

	if s.MetaRead != nil {
		buf := make([]byte, 2048)
		n, addr, err := s.MetaRead(buf, deadline)
		if err == nil && n > 0 {
			s.applyMetadata(buf[:n], addr)
		}
	}

	if s.CommandRead != nil {
		buf := make([]byte, 2048)
		n, _, err := s.CommandRead(buf, deadline)
		if err == nil && n > 0 {
			if err := s.applyCommand(buf[:n]); err != nil && s.Logger != nil {
				s.Logger.Warn("command apply failed", "err", err)
			}
			s.commands++
			forceFull = true
		}
	}

	s.cycle++
	full := !s.booted || forceFull || s.cycle%fullEvery == 0
	s.booted = true

	// When UpdateInterval <= 0, periodic emission is disabled outright
	// (spec.md §6): a status packet still goes out the moment a command
	// is applied, but never on the timer.
	if s.StatusWrite != nil && (s.UpdateInterval > 0 || forceFull) {
		body := s.buildStatus(full)
		if err := s.StatusWrite(body); err != nil && s.Logger != nil {
			s.Logger.Warn("status emit failed", "err", err)
		}
	}
	return nil
}

// applyMetadata updates the SDR-side DS fields from a parsed TLV packet
// received on the metadata socket (spec.md §4.10 step 2). addr, when
// non-nil, is the datagram's sender and is recorded as the metadata
// channel's current source socket identity.
func (s *Service) applyMetadata(buf []byte, addr *net.UDPAddr) {
	_, items, err := tlv.DecodePacket(buf)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("metadata decode failed", "err", err)
		}
		return
	}
	if s.Dump && s.Logger != nil {
		s.Logger.Debug("metadata packet", "items", items)
	}

	s.State.Mu.Lock()
	defer s.State.Mu.Unlock()

	if addr != nil {
		s.State.Input.MetadataSourceAddr = addr
	}
	s.State.Input.MetaPackets++

	for _, it := range items {
		switch it.Tag {
		case tlv.FirstLOFrequency:
			firstLO := rf.Hz(it.Int())
			if err := s.State.OnFirstLOSettled(firstLO); err != nil && s.Logger != nil {
				s.Logger.Warn("first LO settle rejected", "err", err)
			}
		case tlv.LNAGain:
			s.State.SDR.LNAGain = uint8(it.Uint())
		case tlv.MixerGain:
			s.State.SDR.MixerGain = uint8(it.Uint())
		case tlv.IFGain:
			s.State.SDR.IFGain = uint8(it.Uint())
		case tlv.DCOffsetI:
			s.State.SDR.DCOffsetI = it.Float32()
		case tlv.DCOffsetQ:
			s.State.SDR.DCOffsetQ = it.Float32()
		case tlv.IQImbalance:
			s.State.SDR.IQImbalance = it.Float32()
		case tlv.IQPhaseError:
			s.State.SDR.IQPhaseError = it.Float32()
		case tlv.Calibrate:
			s.State.SDR.Calibration = it.Float64()
		case tlv.DirectConversion:
			s.State.SDR.DirectConv = it.Bool()
		}
	}
	s.State.SignalSDRUpdate()
}

// applyCommand applies a parsed command packet's recognized tags to the DS,
// implementing the tuning-logic precedence of spec.md §4.10: RADIO_FREQUENCY
// beats SECOND_LO_FREQUENCY beats FIRST_LO_FREQUENCY, and filter edges are
// validated (not silently swapped) before being applied.
func (s *Service) applyCommand(buf []byte) error {
	_, items, err := tlv.DecodePacket(buf)
	if err != nil {
		return err
	}
	if s.Dump && s.Logger != nil {
		s.Logger.Debug("command packet", "items", items)
	}

	var (
		haveNRF, haveNLO2, haveNLO1 bool
		nrf, nlo2, nlo1             rf.Hz
		haveLow, haveHigh           bool
		low, high                   rf.Hz
		demodChange                 bool
		newKind                     tlv.DemodKind
	)

	s.State.Mu.Lock()
	for _, it := range items {
		switch it.Tag {
		case tlv.RadioFrequency:
			nrf = rf.Hz(it.Int())
			haveNRF = true
		case tlv.SecondLOFrequency:
			nlo2 = rf.Hz(it.Int())
			haveNLO2 = true
		case tlv.FirstLOFrequency:
			nlo1 = rf.Hz(it.Int())
			haveNLO1 = true
		case tlv.LowEdge:
			low = rf.Hz(it.Int())
			haveLow = true
		case tlv.HighEdge:
			high = rf.Hz(it.Int())
			haveHigh = true
		case tlv.KaiserBeta:
			s.State.Filter.KaiserBeta = it.Float64()
		case tlv.ShiftFrequency:
			s.State.Tune.Shift = rf.Hz(it.Int())
		case tlv.PLLEnable:
			s.State.Opt.PLL = it.Bool()
		case tlv.PLLSquare:
			s.State.Opt.Square = it.Bool()
		case tlv.FMFlat:
			s.State.Opt.Flat = it.Bool()
		case tlv.Envelope:
			s.State.Opt.Env = it.Bool()
		case tlv.AGCEnable:
			s.State.Opt.AGC = it.Bool()
		case tlv.AGCAttackRate:
			s.State.AGC.AttackRate = it.Float64()
		case tlv.AGCRecoveryRate:
			s.State.AGC.RecoveryRate = it.Float64()
		case tlv.AGCHangtime:
			s.State.AGC.Hangtime = int(it.Int())
		case tlv.IndependentSideband:
			s.State.Filter.ISB = it.Bool()
		case tlv.DemodType:
			newKind = tlv.DemodKind(it.Uint())
			demodChange = true
		}
	}

	var tuneErr error
	switch {
	case haveNRF:
		if haveNLO2 {
			tuneErr = s.State.SetFreq(nrf, &nlo2)
		} else {
			tuneErr = s.State.SetFreq(nrf, nil)
		}
	case haveNLO2 && s.lo2AdmissibleLocked(nlo2):
		currentFreq := s.State.Tune.Freq
		currentLO2 := s.State.SecondLO.Freq
		newFreq := currentFreq - (nlo2 - currentLO2)
		tuneErr = s.State.SetFreq(newFreq, &nlo2)
	case haveNLO1:
		s.State.SetFirstLO(nlo1)
	}

	filterChanged := false
	if haveLow || haveHigh {
		effLow, effHigh := s.State.Filter.Low, s.State.Filter.High
		if haveLow {
			effLow = low
		}
		if haveHigh {
			effHigh = high
		}
		if err := radiostate.ValidateFilterEdges(effLow, effHigh); err == nil {
			s.State.Filter.Low = effLow
			s.State.Filter.High = effHigh
			filterChanged = true
		} else if tuneErr == nil {
			tuneErr = err
		}
	}
	s.State.Mu.Unlock()

	// A kind change already rebuilds the channelizer for the new filter
	// edges via Supervisor.SwitchTo; an edge change with no kind change
	// still needs the channelizer rebuilt against the new Config.Response,
	// per spec.md §4.10's "reconfigure the channelizer".
	switch {
	case demodChange && s.Supervisor != nil:
		if err := s.Supervisor.SwitchTo(newKind); err != nil {
			return err
		}
	case filterChanged && s.Supervisor != nil:
		if err := s.Supervisor.Reconfigure(); err != nil {
			return err
		}
	}

	return tuneErr
}

func (s *Service) lo2AdmissibleLocked(f rf.Hz) bool {
	sr := float64(s.State.Input.SampleRate)
	return float64(f) >= -sr/2 && float64(f) <= sr/2
}
