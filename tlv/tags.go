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

package tlv

// Tag identifies one TLV field. New tags are added only by extension;
// decoders MUST skip unknown tags by their length byte (see Decode).
type Tag uint8

// The type catalog. Values are stable across versions; never renumber an
// existing tag.
const (
	EOL Tag = iota

	// Input / RTP session (SDR -> radio data stream).
	Description
	InputSSRC
	InputSampleRate
	InputDataSourceSocket
	InputDataDestSocket
	InputMetadataSourceSocket
	InputMetadataDestSocket
	InputSamplesPerPacket
	InputPacketsReceived
	InputSamplesReceived
	InputDropsTag
	InputDupesTag
	InputMetadataPackets

	// SDR front end.
	FirstLOFrequency
	LNAGain
	MixerGain
	IFGain
	DCOffsetI
	DCOffsetQ
	IQImbalance
	IQPhaseError
	Calibrate
	GPSTime
	DirectConversion

	// Tune.
	RadioFrequency
	ShiftFrequency
	TuneItem
	TuneStep
	FrequencyLock

	// Oscillators.
	SecondLOFrequency
	DopplerFrequency
	DopplerFrequencyRate

	// Filter.
	FilterBlocksize
	FilterFIRLength
	LowEdge
	HighEdge
	KaiserBeta
	Interpolate
	Decimate
	IndependentSideband
	NoiseBandwidth

	// AGC.
	AGCEnable
	Gain
	Headroom
	AGCAttackRate
	AGCRecoveryRate
	AGCHangtime

	// Options.
	PLLEnable
	PLLSquare
	FMFlat
	Envelope

	// Signal measurements.
	IFPower
	BasebandPower
	Noisedensity
	DemodSNR
	FrequencyOffset
	PeakDeviation
	CarrierPhase
	PLTone
	PLLLock

	// Demod kind.
	DemodType

	// Output / RTP session (radio -> network PCM).
	OutputSSRC
	OutputSampleRate
	OutputChannels
	OutputDataSourceSocket
	OutputDataDestSocket
	OutputSamplesPerPacket
	OutputPacketsSent
	OutputSamplesSent
	OutputDropsTag
	OutputDupesTag
	OutputLevel

	// Command bookkeeping.
	CommandTag
	Commands

	maxTag
)

// DemodKind mirrors the Demod kind field of the DS.
type DemodKind uint8

const (
	DemodAM DemodKind = iota
	DemodFM
	DemodLinear
)
