package radiostate

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hz.tools/radiod/tlv"
	"hz.tools/rf"
)

// Preset is one line of the mode preset file: a demodulator kind and its
// default parameters, per spec.md §6 "Preset file (text)".
//
//	name demod low high shift attack_rate recovery_rate hangtime [options...]
type Preset struct {
	Name         string
	Kind         tlv.DemodKind
	Low          rf.Hz
	High         rf.Hz
	Shift        rf.Hz
	AttackRate   float64
	RecoveryRate float64
	Hangtime     int
	ISB          bool
	Flat         bool
	Square       bool
	PLL          bool
	Mono         bool
}

var kindByName = map[string]tlv.DemodKind{
	"am":     tlv.DemodAM,
	"fm":     tlv.DemodFM,
	"linear": tlv.DemodLinear,
}

// ParsePresets reads the line-oriented preset file format: whitespace
// separated fields, '#' begins a comment, blank lines ignored.
func ParsePresets(r io.Reader) (map[string]Preset, error) {
	presets := make(map[string]Preset)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("radiostate: preset file line %d: expected at least 8 fields, got %d", lineNo, len(fields))
		}
		kind, ok := kindByName[strings.ToLower(fields[1])]
		if !ok {
			return nil, fmt.Errorf("radiostate: preset file line %d: unknown demod kind %q", lineNo, fields[1])
		}
		low, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: low edge: %w", lineNo, err)
		}
		high, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: high edge: %w", lineNo, err)
		}
		shift, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: shift: %w", lineNo, err)
		}
		attack, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: attack rate: %w", lineNo, err)
		}
		recovery, err := strconv.ParseFloat(fields[6], 64)
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: recovery rate: %w", lineNo, err)
		}
		hang, err := strconv.Atoi(fields[7])
		if err != nil {
			return nil, fmt.Errorf("radiostate: preset file line %d: hangtime: %w", lineNo, err)
		}

		p := Preset{
			Name: fields[0], Kind: kind,
			Low: rf.Hz(low), High: rf.Hz(high), Shift: rf.Hz(shift),
			AttackRate: attack, RecoveryRate: recovery, Hangtime: hang,
		}
		for _, opt := range fields[8:] {
			switch strings.ToLower(opt) {
			case "isb", "conj":
				p.ISB = true
			case "flat":
				p.Flat = true
			case "square":
				p.Square = true
				p.PLL = true // square implies pll, per spec.md §6
			case "coherent", "pll":
				p.PLL = true
			case "mono":
				p.Mono = true
			default:
				return nil, fmt.Errorf("radiostate: preset file line %d: unknown option %q", lineNo, opt)
			}
		}
		if p.Low > p.High {
			p.Low, p.High = p.High, p.Low
		}
		presets[p.Name] = p
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return presets, nil
}

// ApplyPreset copies a preset's defaults into the state, per spec.md §4.7
// preset_mode. The preset's AGC values are copied as-is: attack and
// recovery rates are amplitude ratios per output sample and hangtime is a
// count of output samples, the units the AGC struct uses; no Hz/sec
// conversion is applied. See DESIGN.md.
func (s *State) ApplyPreset(p Preset) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	s.DemodKind = p.Kind
	s.SetFilter(p.Low, p.High)
	s.Tune.Shift = p.Shift
	s.AGC.AttackRate = p.AttackRate
	s.AGC.RecoveryRate = p.RecoveryRate
	s.AGC.Hangtime = p.Hangtime
	s.Opt.PLL = p.PLL
	s.Opt.Square = p.Square
	s.Opt.Flat = p.Flat
	s.Filter.ISB = p.ISB
	if p.Mono {
		s.Output.Channels = 1
	} else if s.Output.Channels == 0 {
		s.Output.Channels = 2
	}
	s.SignalDemodChange()
}
