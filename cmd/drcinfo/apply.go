package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/go-unidrc"
	"github.com/llehouerou/go-unidrc/internal/pcm"
)

// processor runs the decoder over interleaved s16le audio one frame at a
// time.
type processor struct {
	dec      *unidrc.Decoder
	log      *logrus.Logger
	channels int
	frame    int

	in      [][]float32
	mixed   [][]float32
	raw     []byte
	encoded []byte

	frames int
	lost   int
	peak   float64
}

func newProcessor(dec *unidrc.Decoder, log *logrus.Logger, channels, frame int) *processor {
	return &processor{
		dec:      dec,
		log:      log,
		channels: channels,
		frame:    frame,
		in:       pcm.NewBuffer(channels, frame),
		raw:      make([]byte, channels*frame*pcm.BytesPerSample),
		peak:     math.Inf(-1),
	}
}

// downmix mixes p.in into the active downmix layout, or returns p.in when
// no downmix is active.
func (p *processor) downmix() ([][]float32, error) {
	sel, ok := p.dec.Selection()
	if !ok || sel.ActiveDownmixID == 0 || sel.TargetChannelCount == p.channels {
		return p.in, nil
	}
	matrix := sel.DownmixCoefficients
	if matrix == nil {
		m, err := pcm.DefaultMatrix(p.channels, sel.TargetChannelCount)
		if err != nil {
			return nil, fmt.Errorf("downmix %d: %w", sel.ActiveDownmixID, err)
		}
		matrix = m
	}
	if len(p.mixed) != sel.TargetChannelCount {
		p.mixed = pcm.NewBuffer(sel.TargetChannelCount, p.frame)
	}
	if err := pcm.Downmix(p.mixed, p.in, matrix); err != nil {
		return nil, err
	}
	return p.mixed, nil
}

// step reads one frame of audio and one gain payload (nil when lost),
// processes it and writes the result. It returns io.EOF after the last
// frame.
func (p *processor) step(src io.Reader, dst io.Writer, gain []byte) error {
	n, err := io.ReadFull(src, p.raw)
	if n == 0 && err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return err
	}
	samples := pcm.Decode(p.in, p.raw[:n])

	if gain != nil {
		if err := p.dec.ReadUniDrcGain(unidrc.NewBitReader(gain), 0); err != nil {
			p.log.WithError(err).WithField("frame", p.frames).Warn("gain payload dropped")
		}
	} else {
		p.lost++
	}
	if err := p.dec.Preprocess(); err != nil {
		p.log.WithError(err).WithField("frame", p.frames).Warn("preprocess failed")
	}
	if err := p.dec.ProcessTime(unidrc.LocationPreDownmix, p.in); err != nil {
		return fmt.Errorf("frame %d: %w", p.frames, err)
	}
	out, err := p.downmix()
	if err != nil {
		return err
	}
	if err := p.dec.ProcessTime(unidrc.LocationPostDownmix, out); err != nil {
		return fmt.Errorf("frame %d: %w", p.frames, err)
	}

	p.peak = math.Max(p.peak, pcm.PeakDB(out, samples))
	p.encoded, err = pcm.Encode(p.encoded[:0], out, samples)
	if err != nil {
		return err
	}
	if _, err := dst.Write(p.encoded); err != nil {
		return err
	}
	p.frames++
	if samples < p.frame {
		return io.EOF
	}
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func runApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML parameter file")
	drc := fs.String("drc", "", "DRC config payload (required)")
	loudness := fs.String("loudness", "", "loudness info payload")
	gains := fs.String("gains", "", "gain stream; without it every frame is concealed")
	inPath := fs.String("in", "-", "input s16le PCM, - for stdin")
	outPath := fs.String("out", "", "output s16le PCM (required)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: drcinfo apply -drc config.bin -out out.pcm [options]")
		fmt.Fprintln(fs.Output(), "Applies DRC and loudness normalization to raw interleaved s16le audio.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *drc == "" || *outPath == "" {
		fs.Usage()
		return errors.New("apply: -drc and -out are required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	dec, err := newDecoder(&cfg, unidrc.FunctionalRangeAll, log)
	if err != nil {
		return err
	}
	defer dec.Close()
	if err := readPayloads(dec, *drc, *loudness); err != nil {
		return err
	}

	var gainStream io.Reader
	if *gains != "" {
		gf, err := os.Open(*gains)
		if err != nil {
			return err
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(gf)
		gainStream = bufio.NewReader(gf)
	}

	src, err := openInput(*inPath)
	if err != nil {
		return err
	}
	defer func(c io.Closer) {
		_ = c.Close()
	}(src)
	of, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	dst := bufio.NewWriter(of)

	p := newProcessor(dec, log, cfg.Channels, cfg.FrameSize)
	in := bufio.NewReader(src)
	for {
		var gain []byte
		if gainStream != nil {
			gain, err = readFrame(gainStream)
			switch {
			case errors.Is(err, io.EOF):
				gainStream = nil
			case err != nil:
				_ = of.Close()
				return err
			case len(gain) == 0:
				gain = nil
			}
		}
		err = p.step(in, dst, gain)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = of.Close()
			return err
		}
	}
	if err := dst.Flush(); err != nil {
		_ = of.Close()
		return err
	}
	if err := of.Close(); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"frames":  p.frames,
		"lost":    p.lost,
		"peak_db": p.peak,
	}).Info("apply done")
	return nil
}
