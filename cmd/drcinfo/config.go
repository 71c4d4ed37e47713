package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/llehouerou/go-unidrc"
)

// Config is the YAML parameter file shared by all commands.
type Config struct {
	LogLevel   string        `yaml:"log_level"`
	CodecMode  string        `yaml:"codec_mode"`
	FrameSize  int           `yaml:"frame_size"`
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
	DelayMode  string        `yaml:"delay_mode"`
	Decoder    DecoderParams `yaml:"decoder"`
}

// DecoderParams are the playback request. Unset fields keep the decoder
// defaults.
type DecoderParams struct {
	TargetLoudness        *float32 `yaml:"target_loudness,omitempty"`
	LoudnessNormalization *bool    `yaml:"loudness_normalization,omitempty"`
	Boost                 *float32 `yaml:"boost,omitempty"`
	Compress              *float32 `yaml:"compress,omitempty"`
	// EffectTypes is the requested effect followed by its fallbacks.
	EffectTypes        []string `yaml:"effect_types,omitempty"`
	AlbumMode          *bool    `yaml:"album_mode,omitempty"`
	DRCOn              *bool    `yaml:"drc_on,omitempty"`
	DownmixID          *int     `yaml:"downmix_id,omitempty"`
	TargetLayout       *int     `yaml:"target_layout,omitempty"`
	TargetChannelCount *int     `yaml:"target_channel_count,omitempty"`
	GroupIDs           []int    `yaml:"group_ids,omitempty"`
	GroupPresetID      *int     `yaml:"group_preset_id,omitempty"`
	OutputPeakLevelMax *float32 `yaml:"output_peak_level_max,omitempty"`
	GainMaxDB          *float32 `yaml:"gain_max_db,omitempty"`
	MeasurementMethod  string   `yaml:"measurement_method,omitempty"`
	MeasurementSystem  *int     `yaml:"measurement_system,omitempty"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:   "warn",
		CodecMode:  "mpegh",
		FrameSize:  1024,
		SampleRate: 48000,
		Channels:   2,
		DelayMode:  "frame",
	}
}

// loadConfig reads a YAML parameter file over the defaults. An empty path
// or an empty file yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	return log, nil
}

func (c *Config) codecMode() (unidrc.CodecMode, error) {
	switch strings.ToLower(c.CodecMode) {
	case "mpegd", "mpeg-d":
		return unidrc.CodecModeMPEGD, nil
	case "mpegh", "mpeg-h", "":
		return unidrc.CodecModeMPEGH, nil
	}
	return unidrc.CodecModeUnset, fmt.Errorf("unknown codec mode %q", c.CodecMode)
}

func (c *Config) delayMode() (unidrc.DelayMode, error) {
	switch strings.ToLower(c.DelayMode) {
	case "frame", "":
		return unidrc.DelayFrame, nil
	case "none":
		return unidrc.DelayNone, nil
	}
	return 0, fmt.Errorf("unknown delay mode %q", c.DelayMode)
}

var effectTypes = map[string]float32{
	"off":       unidrc.EffectTypeOff,
	"none":      unidrc.EffectTypeNone,
	"night":     unidrc.EffectTypeNight,
	"noisy":     unidrc.EffectTypeNoisy,
	"limited":   unidrc.EffectTypeLimited,
	"low_level": unidrc.EffectTypeLowLevel,
	"dialog":    unidrc.EffectTypeDialog,
	"general":   unidrc.EffectTypeGeneralCompr,
}

// fallbackCode packs fallback effect types into nibbles, first in the
// least significant one.
func fallbackCode(names []string) (float32, error) {
	if len(names) > 6 {
		return 0, fmt.Errorf("at most 6 fallback effect types, got %d", len(names))
	}
	var code uint32
	for i, name := range names {
		v, ok := effectTypes[name]
		if !ok || v <= unidrc.EffectTypeNone {
			return 0, fmt.Errorf("invalid fallback effect type %q", name)
		}
		code |= uint32(v) << (4 * i)
	}
	return float32(code), nil
}

type param struct {
	id    unidrc.Param
	value float32
}

func flagValue(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// params translates the request into decoder parameters.
func (p *DecoderParams) params() ([]param, error) {
	var out []param
	add := func(id unidrc.Param, v float32) { out = append(out, param{id, v}) }

	if p.TargetLoudness != nil {
		add(unidrc.ParamTargetLoudness, *p.TargetLoudness)
	}
	if p.LoudnessNormalization != nil {
		add(unidrc.ParamLoudnessNormalization, flagValue(*p.LoudnessNormalization))
	}
	if p.Boost != nil {
		add(unidrc.ParamBoost, *p.Boost)
	}
	if p.Compress != nil {
		add(unidrc.ParamCompress, *p.Compress)
	}
	if len(p.EffectTypes) > 0 {
		v, ok := effectTypes[p.EffectTypes[0]]
		if !ok {
			return nil, fmt.Errorf("unknown effect type %q", p.EffectTypes[0])
		}
		add(unidrc.ParamEffectType, v)
		if len(p.EffectTypes) > 1 {
			code, err := fallbackCode(p.EffectTypes[1:])
			if err != nil {
				return nil, err
			}
			add(unidrc.ParamEffectTypeFallbackCode, code)
		}
	}
	if p.AlbumMode != nil {
		add(unidrc.ParamAlbumMode, flagValue(*p.AlbumMode))
	}
	if p.DRCOn != nil {
		add(unidrc.ParamDRCOn, flagValue(*p.DRCOn))
	}
	// The downmix request forms are exclusive; the last one set wins.
	if p.DownmixID != nil {
		add(unidrc.ParamDownmixID, float32(*p.DownmixID))
	}
	if p.TargetLayout != nil {
		add(unidrc.ParamTargetLayout, float32(*p.TargetLayout))
	}
	if p.TargetChannelCount != nil {
		add(unidrc.ParamTargetChannelCount, float32(*p.TargetChannelCount))
	}
	for _, id := range p.GroupIDs {
		add(unidrc.ParamGroupID, float32(id))
	}
	if p.GroupPresetID != nil {
		add(unidrc.ParamGroupPresetID, float32(*p.GroupPresetID))
	}
	if p.OutputPeakLevelMax != nil {
		add(unidrc.ParamOutputPeakLevelMax, *p.OutputPeakLevelMax)
	}
	if p.GainMaxDB != nil {
		add(unidrc.ParamGainMaxDB, *p.GainMaxDB)
	}
	switch strings.ToLower(p.MeasurementMethod) {
	case "":
	case "program":
		add(unidrc.ParamLoudnessMeasurementMethod, 0)
	case "anchor":
		add(unidrc.ParamLoudnessMeasurementMethod, 1)
	default:
		return nil, fmt.Errorf("unknown measurement method %q", p.MeasurementMethod)
	}
	if p.MeasurementSystem != nil {
		add(unidrc.ParamLoudnessMeasurementSystem, float32(*p.MeasurementSystem))
	}
	return out, nil
}

// newDecoder opens and initializes a decoder as the config describes.
func newDecoder(cfg *Config, rng unidrc.FunctionalRange, log *logrus.Logger) (*unidrc.Decoder, error) {
	mode, err := cfg.codecMode()
	if err != nil {
		return nil, err
	}
	delay, err := cfg.delayMode()
	if err != nil {
		return nil, err
	}
	params, err := cfg.Decoder.params()
	if err != nil {
		return nil, err
	}

	dec, err := unidrc.NewDecoder(rng, unidrc.WithLogger(log), unidrc.WithDelayMode(delay))
	if err != nil {
		return nil, err
	}
	if err := dec.SetCodecMode(mode); err != nil {
		return nil, err
	}
	if err := dec.Init(cfg.FrameSize, cfg.SampleRate, cfg.Channels); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	for _, p := range params {
		if err := dec.SetParam(p.id, p.value); err != nil {
			return nil, fmt.Errorf("parameter %d = %v: %w", p.id, p.value, err)
		}
	}
	return dec, nil
}
