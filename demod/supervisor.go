package demod

import (
	"fmt"
	"sync"

	"hz.tools/radiod/channelizer"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/tlv"
)

// phase is the mode-switch state machine of spec.md §4.9: a demodulator is
// either RUNNING under some kind, or SWITCHING while the old one is torn
// down and the new one is being brought up.
type phase int

const (
	phaseRunning phase = iota
	phaseSwitching
)

// Factory builds a fresh Demodulator for a given kind, bound to the shared
// state and sink. The caller supplies this so package demod doesn't need to
// know the channel sample rate or sink wiring itself.
type Factory func(kind tlv.DemodKind, state *radiostate.State, sink Sink) (Demodulator, error)

// Supervisor owns the currently-active demodulator and the channelizer
// engine it runs against, swapping both atomically when the commanded
// DemodKind changes. It satisfies pipeline.Demodulator by delegating to
// whichever concrete demodulator is currently installed.
type Supervisor struct {
	mu      sync.Mutex
	phase   phase
	kind    tlv.DemodKind
	active  Demodulator
	factory Factory
	state   *radiostate.State
	sink    Sink

	newEngine func(kind tlv.DemodKind) (*channelizer.Engine, error)
	engine    *channelizer.Engine
}

// NewSupervisor returns a Supervisor already running the given initial
// kind, or an error if the factory or the channelizer engine construction
// for that kind fails.
func NewSupervisor(state *radiostate.State, sink Sink, factory Factory, newEngine func(kind tlv.DemodKind) (*channelizer.Engine, error), initial tlv.DemodKind) (*Supervisor, error) {
	s := &Supervisor{
		factory:   factory,
		state:     state,
		sink:      sink,
		newEngine: newEngine,
	}
	if err := s.switchTo(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Engine returns the channelizer engine currently backing the active
// demodulator, for package pipeline to run blocks through.
func (s *Supervisor) Engine() *channelizer.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Kind reports the currently active demodulator kind.
func (s *Supervisor) Kind() tlv.DemodKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// ProcessBlock implements pipeline.Demodulator, delegating to whichever
// concrete demodulator is installed. Per spec.md §4.9 this happens within
// one block of a mode-change command landing: SwitchTo fully completes
// before the pipeline's next RunBlock call reaches here.
func (s *Supervisor) ProcessBlock(filtered []complex128) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	return active.ProcessBlock(filtered)
}

// SwitchTo tears down the currently active demodulator and brings up a new
// one of the requested kind, reconfiguring the channelizer engine for it.
// It is the RUNNING(old)->SWITCHING->RUNNING(new) transition of spec.md
// §4.9; the caller (the status service, on receipt of a DEMOD_TYPE command)
// must hold no state lock when calling this, since it takes its own.
func (s *Supervisor) SwitchTo(kind tlv.DemodKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phaseRunning && s.kind == kind {
		return nil
	}
	return s.switchToLocked(kind)
}

// Reconfigure rebuilds the channelizer engine and the active demodulator
// for the current kind, used when a filter-edge change lands without a
// DEMOD_TYPE change (spec.md §4.10's "reconfigure the channelizer").
func (s *Supervisor) Reconfigure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchToLocked(s.kind)
}

func (s *Supervisor) switchTo(kind tlv.DemodKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchToLocked(kind)
}

func (s *Supervisor) switchToLocked(kind tlv.DemodKind) error {
	s.phase = phaseSwitching
	if s.active != nil {
		s.active.Reset()
	}

	engine, err := s.newEngine(kind)
	if err != nil {
		s.phase = phaseRunning
		return fmt.Errorf("demod: supervisor: reconfigure channelizer for %v: %w", kind, err)
	}

	next, err := s.factory(kind, s.state, s.sink)
	if err != nil {
		s.phase = phaseRunning
		return fmt.Errorf("demod: supervisor: build demodulator for %v: %w", kind, err)
	}

	s.engine = engine
	s.active = next
	s.kind = kind
	s.phase = phaseRunning

	s.state.Mu.Lock()
	s.state.DemodKind = kind
	s.state.Sig.PLLLock = false
	s.state.SignalDemodChange()
	s.state.Mu.Unlock()

	return nil
}
