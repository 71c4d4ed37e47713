// Package unidrc provides a pure Go Unified DRC (MPEG-D DRC and MPEG-H 3D
// Audio DRC) decoder.
//
// The decoder parses the DRC configuration, the loudness information and
// the per-frame gain payloads carried by a codec, selects the DRC sets
// that match the playback request and applies their gains to decoded
// audio.
//
// # Basic Usage
//
//	dec, err := unidrc.NewDecoder(unidrc.FunctionalRangeAll)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	_ = dec.SetCodecMode(unidrc.CodecModeMPEGD)
//	_ = dec.Init(1024, 48000, 2)
//	_ = dec.SetParam(unidrc.ParamEffectType, unidrc.EffectTypeNight)
//
//	_ = dec.ReadUniDrcConfig(unidrc.NewBitReader(config), 0)
//	for frame := range frames {
//	    _ = dec.ReadUniDrcGain(unidrc.NewBitReader(frame.gain), 0)
//	    if err := dec.Preprocess(); err != nil {
//	        // The previous selection stays in effect.
//	    }
//	    _ = dec.ProcessTime(unidrc.LocationPreDownmix, frame.pcm)
//	}
//
// # Selection
//
// Parameters, configuration and loudness changes mark the selection
// stale. The selection runs once, at the next Preprocess, so the order in
// which parameters are set does not change the result.
//
// # Errors
//
// Every error carries an Error code, readable with Code. Errors of the
// internal stages are wrapped, so errors.Is matches both the code and the
// cause.
//
// # Processing Domains
//
// Time domain processing applies single band DRC sets. Multiband DRC sets
// need the subband domain, enabled with WithSubbandDomain and driven with
// ProcessFreq.
package unidrc
