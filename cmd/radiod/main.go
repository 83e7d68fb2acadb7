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

// Command radiod is the channelizing demodulator daemon: it reads I/Q
// multicast, runs the tuned channel through a demodulator, and republishes
// PCM and TLV status, all driven from a preset file and a handful of flags
// (spec.md §6, §4.11).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"hz.tools/radiod/channelizer"
	"hz.tools/radiod/config"
	"hz.tools/radiod/demod"
	"hz.tools/radiod/kaiser"
	"hz.tools/radiod/multicast"
	"hz.tools/radiod/pipeline"
	"hz.tools/radiod/radiostate"
	"hz.tools/radiod/statussvc"
	"hz.tools/radiod/tlv"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 for a normal shutdown (SIGINT/SIGTERM),
// 1 for any configuration error encountered before the daemon starts serving
// traffic, per spec.md §6.
func run() int {
	var (
		verbose      = pflag.BoolP("verbose", "v", false, "verbose logging")
		dump         = pflag.BoolP("dump", "d", false, "dump decoded status/command packets")
		configFile   = pflag.StringP("config", "c", "", "optional YAML config file")
		presetFile   = pflag.StringP("presets", "p", "", "mode preset file")
		presetName   = pflag.StringP("mode", "m", "am", "initial preset name")
		inputAddr    = pflag.StringP("input", "i", "", "I/Q input multicast address")
		outputAddr   = pflag.StringP("output", "o", "", "PCM output multicast address")
		metadataAddr = pflag.StringP("metadata", "M", "", "SDR metadata multicast address")
	)
	pflag.Parse()

	var statusAddr string
	if pflag.NArg() > 0 {
		statusAddr = pflag.Arg(0)
	}

	logLevel := log.InfoLevel
	if *verbose {
		logLevel = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: logLevel})

	cfg, err := config.Load(*configFile, statusAddr, *verbose, *dump)
	if err != nil {
		logger.Error("configuration error", "err", err)
		return 1
	}
	if *inputAddr != "" {
		cfg.InputAddr = *inputAddr
	}
	if *outputAddr != "" {
		cfg.OutputAddr = *outputAddr
	}
	if *metadataAddr != "" {
		cfg.MetadataAddr = *metadataAddr
	}
	if cfg.InputAddr == "" || cfg.OutputAddr == "" {
		logger.Error("configuration error", "err", "--input and --output multicast addresses are required")
		return 1
	}

	state := radiostate.New()
	state.Input.SampleRate = 48000
	state.Output.SampleRate = 48000
	state.Output.Channels = 1
	state.Filter.L = 12288
	state.Filter.M = 4097
	state.Filter.KaiserBeta = 11
	state.Filter.Decimate = 1
	state.Filter.Low = -5000
	state.Filter.High = 5000
	state.AGC.AttackRate = 0.98
	state.AGC.RecoveryRate = 1.002
	state.AGC.Hangtime = 4800
	state.AGC.Headroom = 0.8909 // -1dBFS

	// The CLI flag wins over the config file's preset_file entry; a
	// relative path from either source is resolved against Libdir, the
	// directory the preset table and help text live in (spec.md §6).
	presetPath := *presetFile
	if presetPath == "" {
		presetPath = cfg.PresetFile
	}
	if presetPath != "" && !filepath.IsAbs(presetPath) {
		presetPath = filepath.Join(cfg.Libdir, presetPath)
	}
	if presetPath != "" {
		f, err := os.Open(presetPath)
		if err != nil {
			logger.Error("configuration error", "err", err)
			return 1
		}
		presets, err := radiostate.ParsePresets(f)
		f.Close()
		if err != nil {
			logger.Error("configuration error", "err", err)
			return 1
		}
		if p, ok := presets[*presetName]; ok {
			state.ApplyPreset(p)
		} else {
			logger.Warn("preset not found, using built-in defaults", "name", *presetName)
		}
	}

	inputSocket, err := multicast.Open(multicast.Config{
		Direction: multicast.Input,
		Addr:      cfg.InputAddr,
		Interface: cfg.Interface,
	})
	if inputSocket == nil {
		logger.Error("configuration error", "err", err)
		return 1
	} else if err != nil {
		logger.Warn("multicast setup warning", "err", err)
	}
	outputSocket, err := multicast.Open(multicast.Config{
		Direction:   multicast.Output,
		Addr:        cfg.OutputAddr,
		Interface:   cfg.Interface,
		TTL:         cfg.TTL,
		PassiveJoin: true,
	})
	if outputSocket == nil {
		logger.Error("configuration error", "err", err)
		return 1
	} else if err != nil {
		logger.Warn("multicast setup warning", "err", err)
	}
	// The control group carries both directions (status out, commands in),
	// so it's opened as an Input socket (bound and joined) and status
	// packets are sent back to the same group address on that socket
	// rather than through a second, Dial'd one.
	statusSocket, err := multicast.Open(multicast.Config{
		Direction: multicast.Input,
		Addr:      cfg.StatusAddr,
		Interface: cfg.Interface,
	})
	if statusSocket == nil {
		logger.Error("configuration error", "err", err)
		return 1
	} else if err != nil {
		logger.Warn("multicast setup warning", "err", err)
	}
	var metadataSocket *multicast.Socket
	if cfg.MetadataAddr != "" {
		metadataSocket, err = multicast.Open(multicast.Config{
			Direction: multicast.Input,
			Addr:      cfg.MetadataAddr,
			Interface: cfg.Interface,
		})
		if metadataSocket == nil {
			logger.Error("configuration error", "err", err)
			return 1
		} else if err != nil {
			logger.Warn("multicast setup warning", "err", err)
		}
	}

	ring := pipeline.NewRing(pipeline.DefaultRingCapacity)
	sink := newRTPSink(outputSocket, state, logger.With("component", "egress"))

	newEngine := func(kind tlv.DemodKind) (*channelizer.Engine, error) {
		return buildEngine(state, kind)
	}
	supervisor, err := demod.NewSupervisor(state, sink, buildDemodulator, newEngine, state.DemodKind)
	if err != nil {
		logger.Error("configuration error", "err", err)
		return 1
	}

	pl := &pipeline.Pipeline{Ring: ring, Demod: supervisor, State: state}
	svc := statussvc.New(state, supervisor, logger.With("component", "statussvc"))
	svc.Dump = cfg.Dump
	svc.UpdateInterval = cfg.UpdateInterval
	if metadataSocket != nil {
		state.Mu.Lock()
		state.Input.MetadataDestAddr = metadataSocket.Addr
		state.Mu.Unlock()
		svc.MetaRead = datagramReader(metadataSocket)
	}
	svc.CommandRead = datagramReader(statusSocket)
	svc.StatusWrite = func(buf []byte) error {
		_, err := statusSocket.Conn.WriteToUDP(buf, statusSocket.Addr)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		state.Terminate()
		cancel()
	}()

	ingress := newRTPIngress(inputSocket, ring, state, logger.With("component", "ingress"))

	errCh := make(chan error, 3)
	go func() { errCh <- ingress.run(ctx) }()
	go func() { errCh <- pl.Run(ctx) }()
	go func() { errCh <- svc.Run(ctx) }()

	err = <-errCh
	cancel()
	if err != nil && ctx.Err() == nil {
		logger.Error("worker exited", "err", err)
		return 1
	}
	return 0
}

// datagramReader adapts a bound multicast socket to the
// statussvc.Service.MetaRead/CommandRead shape: a single non-blocking-ish
// read bounded by deadline, returning (0, nil, nil) on timeout so the
// caller's poll loop moves on to the next socket. The sender address is
// returned alongside the byte count so the caller can record it as the
// channel's current source socket identity.
func datagramReader(socket *multicast.Socket) func(buf []byte, deadline time.Time) (int, *net.UDPAddr, error) {
	return func(buf []byte, deadline time.Time) (int, *net.UDPAddr, error) {
		if err := socket.Conn.SetReadDeadline(deadline); err != nil {
			return 0, nil, err
		}
		n, addr, err := socket.Conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return 0, nil, nil
			}
			return 0, nil, err
		}
		return n, addr, nil
	}
}

// buildEngine synthesizes the Kaiser-windowed response for the current
// filter edges and allocates a fresh channelizer.Engine sized for the
// requested demodulator kind's transfer function (spec.md §4.9's
// channelizer-reconfigure step of a mode switch).
func buildEngine(state *radiostate.State, kind tlv.DemodKind) (*channelizer.Engine, error) {
	state.Mu.Lock()
	l := state.Filter.L
	m := state.Filter.M
	beta := state.Filter.KaiserBeta
	decimate := state.Filter.Decimate
	low := float64(state.Filter.Low)
	high := float64(state.Filter.High)
	sampleRate := float64(state.Input.SampleRate)
	isb := state.Filter.ISB
	state.Mu.Unlock()

	n := l + m - 1
	mode := channelizer.Complex
	switch {
	case kind == tlv.DemodAM:
		mode = channelizer.Real
	case isb:
		mode = channelizer.CrossConj
	}

	desired := make([]complex128, n)
	for k := 0; k < n; k++ {
		freq := binFrequency(k, n, sampleRate)
		if freq >= low && freq <= high {
			desired[k] = complex(1, 0)
		}
	}

	var response []complex128
	var err error
	if mode == channelizer.Real {
		half := n/2 + 1
		response, err = kaiser.SynthesizeReal(desired[:half], n, m, beta)
	} else {
		response, err = kaiser.Synthesize(desired, m, beta)
	}
	if err != nil {
		return nil, fmt.Errorf("radiod: synthesize filter response: %w", err)
	}

	cfg := channelizer.Config{
		L:        l,
		M:        m,
		Decimate: decimate,
		Mode:     mode,
		Response: response,
	}
	return channelizer.New(cfg)
}

// binFrequency maps FFT bin k of an n-point transform at the given sample
// rate to its signed frequency in Hz.
func binFrequency(k, n int, sampleRate float64) float64 {
	if k <= n/2 {
		return float64(k) * sampleRate / float64(n)
	}
	return float64(k-n) * sampleRate / float64(n)
}

// buildDemodulator is the demod.Factory used by the supervisor to bring up
// a fresh demodulator of the requested kind.
func buildDemodulator(kind tlv.DemodKind, state *radiostate.State, sink demod.Sink) (demod.Demodulator, error) {
	sampleRate := float64(state.Output.SampleRate)
	switch kind {
	case tlv.DemodAM:
		return demod.NewAM(state, sink), nil
	case tlv.DemodFM:
		return demod.NewFM(state, sink, sampleRate), nil
	case tlv.DemodLinear:
		return demod.NewLinear(state, sink, sampleRate), nil
	default:
		return nil, fmt.Errorf("radiod: unknown demodulator kind %v", kind)
	}
}
