package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/llehouerou/go-unidrc/internal/bits"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// synthOptions describe the demo stream written by the synth command.
type synthOptions struct {
	mode       syntax.Mode
	channels   int
	sampleRate int
	frameSize  int
	frames     int
	gainDB     float64 // compression depth
	period     int     // frames per modulation cycle, 0 for a constant gain
	program    float64 // program loudness, LKFS
	peak       float64 // sample peak, dBFS
}

// demoConfig builds a configuration with one compression set (id 1)
// applying a single gain sequence to all channels, and loudness for the
// unprocessed and the compressed signal.
func demoConfig(o *synthOptions) (*syntax.Config, error) {
	gs := syntax.GainSet{
		CodingProfile: syntax.GCPRegular,
		Interpolation: syntax.InterpolationLinear,
		TimeDeltaMin:  syntax.DefaultTimeDeltaMin(o.sampleRate),
		BandCount:     1,
	}
	set := syntax.Instructions{
		ID:           1,
		Scope:        syntax.PlainScope{},
		Location:     syntax.LocationSelected,
		DownmixIDs:   []uint8{syntax.DownmixIDBase},
		Effect:       syntax.EffectGeneralCompr | syntax.EffectNight,
		ChannelCount: o.channels,
		GainSetIndex: make([]int, o.channels),
	}
	if err := syntax.DeriveChannelGroups(&set); err != nil {
		return nil, err
	}

	loud := func(id int, program float64, peak float64) syntax.LoudnessInfo {
		return syntax.LoudnessInfo{
			Scope:                  syntax.PlainScope{},
			DrcSetID:               id,
			SamplePeakLevelPresent: true,
			SamplePeakLevel:        float32(peak),
			Measurements: []syntax.Measurement{{
				MethodDefinition: syntax.MethodProgramLoudness,
				Value:            float32(program),
				System:           2,
				Reliability:      3,
			}},
		}
	}
	// Compression lowers the program loudness by about half the depth.
	compressed := o.program + o.gainDB/2
	ls := &syntax.LoudnessInfoSet{Info: []syntax.LoudnessInfo{
		loud(syntax.DrcSetIDNone, o.program, o.peak),
		loud(set.ID, compressed, o.peak+o.gainDB),
	}}

	cfg := &syntax.Config{
		Mode:              o.mode,
		SampleRatePresent: o.mode == syntax.ModeMPEGD,
		SampleRate:        o.sampleRate,
		ChannelLayout:     syntax.ChannelLayout{BaseChannelCount: o.channels},
		Coefficients: []syntax.Coefficients{{
			Location:          syntax.LocationSelected,
			GainSets:          []syntax.GainSet{gs},
			GainSequenceCount: 1,
			SequenceGainSet:   []int{0},
		}},
		Instructions: []syntax.Instructions{set},
		Loudness:     ls,
	}
	return cfg, nil
}

// frameGain is the gain of frame n: constant, or a raised cosine between
// 0 dB and the depth.
func (o *synthOptions) frameGain(n int) float32 {
	if o.period <= 0 {
		return float32(o.gainDB)
	}
	phase := 2 * math.Pi * float64(n%o.period) / float64(o.period)
	return float32(o.gainDB * (0.5 - 0.5*math.Cos(phase)))
}

func encodeConfig(cfg *syntax.Config) []byte {
	w := bits.NewWriter()
	syntax.WriteConfig(w, cfg)
	return w.Bytes()
}

func encodeLoudness(cfg *syntax.Config) []byte {
	w := bits.NewWriter()
	syntax.WriteLoudnessInfoSet(w, cfg.Loudness, cfg.Mode)
	return w.Bytes()
}

// writeGainStream writes one simple-coded gain payload per frame. parsed
// must be the configuration as a decoder parses it.
func writeGainStream(path string, parsed *syntax.Config, o *synthOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for n := 0; n < o.frames; n++ {
		w := bits.NewWriter()
		p := []syntax.SequencePayload{{Simple: true, Nodes: []syntax.Node{{GainDB: o.frameGain(n)}}}}
		if err := syntax.WriteGain(w, parsed, 0, o.frameSize, p); err != nil {
			_ = f.Close()
			return fmt.Errorf("frame %d: %w", n, err)
		}
		if err := writeFrame(bw, w.Bytes()); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	out := fs.String("o", "", "output path of the DRC config payload (required)")
	gains := fs.String("gains", "", "output path of the gain stream")
	loudness := fs.String("loudness", "", "output path of a separate loudness payload")
	mode := fs.String("mode", "mpegh", "payload syntax: mpegd or mpegh")
	o := synthOptions{}
	fs.IntVar(&o.channels, "channels", 2, "channel count")
	fs.IntVar(&o.sampleRate, "rate", 48000, "sample rate in Hz")
	fs.IntVar(&o.frameSize, "frame-size", 1024, "samples per frame")
	fs.IntVar(&o.frames, "frames", 100, "frames in the gain stream")
	fs.Float64Var(&o.gainDB, "gain", -6, "compression depth in dB")
	fs.IntVar(&o.period, "period", 0, "frames per gain modulation cycle, 0 for constant")
	fs.Float64Var(&o.program, "program", -18, "program loudness in LKFS")
	fs.Float64Var(&o.peak, "peak", -1, "sample peak level in dBFS")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: drcinfo synth -o config.bin [options]")
		fmt.Fprintln(fs.Output(), "Writes a demo DRC config with one compression set, and optionally a gain stream.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return errors.New("synth: -o is required")
	}
	switch *mode {
	case "mpegd":
		o.mode = syntax.ModeMPEGD
	case "mpegh":
		o.mode = syntax.ModeMPEGH
	default:
		return fmt.Errorf("synth: unknown mode %q", *mode)
	}
	if o.channels <= 0 || o.channels > syntax.MaxChannels || o.frameSize <= 0 || o.sampleRate <= 0 {
		return errors.New("synth: invalid stream layout")
	}

	cfg, err := demoConfig(&o)
	if err != nil {
		return err
	}
	data := encodeConfig(cfg)
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	if *loudness != "" {
		if err := os.WriteFile(*loudness, encodeLoudness(cfg), 0o644); err != nil {
			return err
		}
	}
	if *gains == "" {
		return nil
	}
	parsed, err := syntax.ParseConfig(bits.NewReader(data), syntax.ConfigOptions{Mode: o.mode, SampleRate: o.sampleRate})
	if err != nil {
		return fmt.Errorf("synth: reparse config: %w", err)
	}
	return writeGainStream(*gains, &parsed, &o)
}
