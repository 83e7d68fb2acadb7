package statussvc

import (
	"hz.tools/radiod/tlv"
)

// buildStatus renders the current DS into a complete TLV status packet,
// KindStatus prefix byte included, ready to hand to StatusWrite. When full is
// false, only tags that changed since the last emission are included,
// implementing spec.md §4.10 step 4's delta compression via package tlv's
// Cache.
func (s *Service) buildStatus(full bool) []byte {
	s.State.Mu.Lock()
	items := s.snapshotLocked()
	s.State.Mu.Unlock()

	var toSend []tlv.Item
	if full {
		s.cache.Record(items)
		toSend = items
	} else {
		toSend = s.cache.Filter(items)
	}

	var buf []byte
	for _, it := range toSend {
		buf = append(buf, byte(it.Tag), byte(len(it.Value)))
		buf = append(buf, it.Value...)
	}
	buf = tlv.EncodeUint(buf, tlv.CommandTag, 0)
	buf = tlv.EncodeUint(buf, tlv.Commands, s.commands)
	buf = tlv.EncodeEOL(buf)
	return tlv.EncodePacket(tlv.KindStatus, buf)
}

// snapshotLocked encodes every DS field the status protocol exposes into a
// flat list of TLV items; it never decides full-vs-delta, that's buildStatus's
// job via package tlv's Cache. Callers must hold State.Mu.
func (s *Service) snapshotLocked() []tlv.Item {
	st := s.State
	var buf []byte

	buf = tlv.EncodeString(buf, tlv.Description, st.Input.Description)
	buf = tlv.EncodeUint(buf, tlv.InputSSRC, uint64(st.Input.Session.SSRC))
	buf = tlv.EncodeUint(buf, tlv.InputSampleRate, uint64(st.Input.SampleRate))
	buf = tlv.EncodeSocket(buf, tlv.InputDataSourceSocket, st.Input.SourceAddr)
	buf = tlv.EncodeSocket(buf, tlv.InputDataDestSocket, st.Input.DestAddr)
	buf = tlv.EncodeSocket(buf, tlv.InputMetadataSourceSocket, st.Input.MetadataSourceAddr)
	buf = tlv.EncodeSocket(buf, tlv.InputMetadataDestSocket, st.Input.MetadataDestAddr)
	buf = tlv.EncodeUint(buf, tlv.InputPacketsReceived, st.Input.Session.Packets)
	buf = tlv.EncodeUint(buf, tlv.InputDropsTag, st.Input.Session.Drops)
	buf = tlv.EncodeUint(buf, tlv.InputDupesTag, st.Input.Session.Dupes)
	buf = tlv.EncodeUint(buf, tlv.InputMetadataPackets, st.Input.MetaPackets)

	buf = tlv.EncodeInt(buf, tlv.FirstLOFrequency, int64(st.SDR.FirstLO))
	buf = tlv.EncodeUint(buf, tlv.LNAGain, uint64(st.SDR.LNAGain))
	buf = tlv.EncodeUint(buf, tlv.MixerGain, uint64(st.SDR.MixerGain))
	buf = tlv.EncodeUint(buf, tlv.IFGain, uint64(st.SDR.IFGain))
	buf = tlv.EncodeFloat32(buf, tlv.DCOffsetI, st.SDR.DCOffsetI)
	buf = tlv.EncodeFloat32(buf, tlv.DCOffsetQ, st.SDR.DCOffsetQ)
	buf = tlv.EncodeFloat32(buf, tlv.IQImbalance, st.SDR.IQImbalance)
	buf = tlv.EncodeFloat32(buf, tlv.IQPhaseError, st.SDR.IQPhaseError)
	buf = tlv.EncodeFloat64(buf, tlv.Calibrate, st.SDR.Calibration)
	buf = tlv.EncodeInt(buf, tlv.GPSTime, st.SDR.GPSTime.Unix())
	buf = tlv.EncodeBool(buf, tlv.DirectConversion, st.SDR.DirectConv)

	buf = tlv.EncodeInt(buf, tlv.RadioFrequency, int64(st.Tune.Freq))
	buf = tlv.EncodeInt(buf, tlv.ShiftFrequency, int64(st.Tune.Shift))
	buf = tlv.EncodeUint(buf, tlv.TuneItem, uint64(st.Tune.Item))
	buf = tlv.EncodeUint(buf, tlv.TuneStep, uint64(st.Tune.Step))
	buf = tlv.EncodeBool(buf, tlv.FrequencyLock, st.Tune.Lock)

	buf = tlv.EncodeInt(buf, tlv.SecondLOFrequency, int64(st.SecondLO.Freq))
	buf = tlv.EncodeInt(buf, tlv.DopplerFrequency, int64(st.Doppler.Freq))
	buf = tlv.EncodeFloat64(buf, tlv.DopplerFrequencyRate, st.Doppler.Rate)

	buf = tlv.EncodeUint(buf, tlv.FilterBlocksize, uint64(st.Filter.L))
	buf = tlv.EncodeUint(buf, tlv.FilterFIRLength, uint64(st.Filter.M))
	buf = tlv.EncodeInt(buf, tlv.LowEdge, int64(st.Filter.Low))
	buf = tlv.EncodeInt(buf, tlv.HighEdge, int64(st.Filter.High))
	buf = tlv.EncodeFloat64(buf, tlv.KaiserBeta, st.Filter.KaiserBeta)
	buf = tlv.EncodeUint(buf, tlv.Decimate, uint64(st.Filter.Decimate))
	buf = tlv.EncodeBool(buf, tlv.IndependentSideband, st.Filter.ISB)

	buf = tlv.EncodeBool(buf, tlv.AGCEnable, st.Opt.AGC)
	buf = tlv.EncodeFloat64(buf, tlv.Gain, st.AGC.Gain)
	buf = tlv.EncodeFloat64(buf, tlv.Headroom, st.AGC.Headroom)
	buf = tlv.EncodeFloat64(buf, tlv.AGCAttackRate, st.AGC.AttackRate)
	buf = tlv.EncodeFloat64(buf, tlv.AGCRecoveryRate, st.AGC.RecoveryRate)
	buf = tlv.EncodeUint(buf, tlv.AGCHangtime, uint64(st.AGC.Hangtime))

	buf = tlv.EncodeBool(buf, tlv.PLLEnable, st.Opt.PLL)
	buf = tlv.EncodeBool(buf, tlv.PLLSquare, st.Opt.Square)
	buf = tlv.EncodeBool(buf, tlv.FMFlat, st.Opt.Flat)
	buf = tlv.EncodeBool(buf, tlv.Envelope, st.Opt.Env)

	buf = tlv.EncodeFloat64(buf, tlv.IFPower, st.Sig.IFPower)
	buf = tlv.EncodeFloat64(buf, tlv.BasebandPower, st.Sig.BBPower)
	buf = tlv.EncodeFloat64(buf, tlv.Noisedensity, st.Sig.N0)
	buf = tlv.EncodeFloat64(buf, tlv.DemodSNR, st.Sig.SNR)
	buf = tlv.EncodeFloat64(buf, tlv.FrequencyOffset, st.Sig.FOffset)
	buf = tlv.EncodeFloat64(buf, tlv.PeakDeviation, st.Sig.PDeviation)
	buf = tlv.EncodeFloat64(buf, tlv.CarrierPhase, st.Sig.CPhase)
	buf = tlv.EncodeFloat64(buf, tlv.PLTone, st.Sig.PLFreq)
	buf = tlv.EncodeBool(buf, tlv.PLLLock, st.Sig.PLLLock)

	buf = tlv.EncodeUint(buf, tlv.DemodType, uint64(st.DemodKind))

	buf = tlv.EncodeUint(buf, tlv.OutputSSRC, uint64(st.Output.Session.SSRC))
	buf = tlv.EncodeUint(buf, tlv.OutputSampleRate, uint64(st.Output.SampleRate))
	buf = tlv.EncodeUint(buf, tlv.OutputChannels, uint64(st.Output.Channels))
	buf = tlv.EncodeSocket(buf, tlv.OutputDataSourceSocket, st.Output.SourceAddr)
	buf = tlv.EncodeSocket(buf, tlv.OutputDataDestSocket, st.Output.DestAddr)
	buf = tlv.EncodeUint(buf, tlv.OutputPacketsSent, st.Output.Session.Packets)
	buf = tlv.EncodeUint(buf, tlv.OutputSamplesSent, st.Output.SampleCount)
	buf = tlv.EncodeUint(buf, tlv.OutputDropsTag, st.Output.Session.Drops)
	buf = tlv.EncodeUint(buf, tlv.OutputDupesTag, st.Output.Session.Dupes)
	buf = tlv.EncodeFloat64(buf, tlv.OutputLevel, st.Output.Level)

	items, _ := tlv.Decode(buf)
	return items
}
