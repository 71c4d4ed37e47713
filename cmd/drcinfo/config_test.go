package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/go-unidrc"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg, err = loadConfig(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg, err = loadConfig(writeFile(t, "params.yaml", `
log_level: debug
codec_mode: mpegd
frame_size: 256
decoder:
  target_loudness: -16
  loudness_normalization: true
  effect_types: [night, general]
  group_ids: [3, 4]
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mpegd", cfg.CodecMode)
	assert.Equal(t, 256, cfg.FrameSize)
	assert.Equal(t, 48000, cfg.SampleRate, "unset fields keep their default")
	require.NotNil(t, cfg.Decoder.TargetLoudness)
	assert.Equal(t, float32(-16), *cfg.Decoder.TargetLoudness)
	assert.Equal(t, []string{"night", "general"}, cfg.Decoder.EffectTypes)
	assert.Equal(t, []int{3, 4}, cfg.Decoder.GroupIDs)
	assert.Nil(t, cfg.Decoder.Boost)

	_, err = loadConfig(writeFile(t, "bad.yaml", "decoder: [1, 2"))
	assert.Error(t, err)
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_Modes(t *testing.T) {
	cfg := defaultConfig()
	mode, err := cfg.codecMode()
	require.NoError(t, err)
	assert.Equal(t, unidrc.CodecModeMPEGH, mode)
	cfg.CodecMode = "MPEG-D"
	mode, err = cfg.codecMode()
	require.NoError(t, err)
	assert.Equal(t, unidrc.CodecModeMPEGD, mode)
	cfg.CodecMode = "ac4"
	_, err = cfg.codecMode()
	assert.Error(t, err)

	delay, err := cfg.delayMode()
	require.NoError(t, err)
	assert.Equal(t, unidrc.DelayFrame, delay)
	cfg.DelayMode = "none"
	delay, err = cfg.delayMode()
	require.NoError(t, err)
	assert.Equal(t, unidrc.DelayNone, delay)

	log, err := cfg.logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	cfg.LogLevel = "loud"
	_, err = cfg.logger()
	assert.Error(t, err)
}

func TestFallbackCode(t *testing.T) {
	tests := []struct {
		names   []string
		want    float32
		wantErr bool
	}{
		{nil, 0, false},
		{[]string{"night"}, 1, false},
		{[]string{"night", "noisy"}, 0x21, false},
		{[]string{"general", "dialog", "low_level"}, 0x456, false},
		{[]string{"off"}, 0, true},
		{[]string{"none"}, 0, true},
		{[]string{"loud"}, 0, true},
		{[]string{"night", "night", "night", "night", "night", "night", "night"}, 0, true},
	}
	for _, tt := range tests {
		got, err := fallbackCode(tt.names)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.names)
			continue
		}
		require.NoError(t, err, "%v", tt.names)
		assert.Equal(t, tt.want, got, "%v", tt.names)
	}
}

func TestDecoderParams(t *testing.T) {
	target := float32(-20)
	on := true
	layout := 2
	p := DecoderParams{
		TargetLoudness:        &target,
		LoudnessNormalization: &on,
		EffectTypes:           []string{"night", "general", "dialog"},
		TargetLayout:          &layout,
		GroupIDs:              []int{7},
		MeasurementMethod:     "anchor",
	}
	got, err := p.params()
	require.NoError(t, err)
	assert.Equal(t, []param{
		{unidrc.ParamTargetLoudness, -20},
		{unidrc.ParamLoudnessNormalization, 1},
		{unidrc.ParamEffectType, unidrc.EffectTypeNight},
		{unidrc.ParamEffectTypeFallbackCode, 0x56},
		{unidrc.ParamTargetLayout, 2},
		{unidrc.ParamGroupID, 7},
		{unidrc.ParamLoudnessMeasurementMethod, 1},
	}, got)

	_, err = (&DecoderParams{EffectTypes: []string{"loud"}}).params()
	assert.Error(t, err)
	_, err = (&DecoderParams{MeasurementMethod: "peak"}).params()
	assert.Error(t, err)
}

func TestNewDecoder(t *testing.T) {
	log := logrus.New()
	cfg := defaultConfig()
	target := float32(-31)
	cfg.Decoder.TargetLoudness = &target

	dec, err := newDecoder(&cfg, unidrc.FunctionalRangeSelection, log)
	require.NoError(t, err)
	v, err := dec.GetParam(unidrc.ParamTargetLoudness)
	require.NoError(t, err)
	assert.Equal(t, target, v)

	loud := float32(3)
	cfg.Decoder.TargetLoudness = &loud
	_, err = newDecoder(&cfg, unidrc.FunctionalRangeSelection, log)
	assert.ErrorIs(t, err, unidrc.ErrParamOutOfRange)

	cfg = defaultConfig()
	cfg.Channels = 0
	_, err = newDecoder(&cfg, unidrc.FunctionalRangeSelection, log)
	assert.ErrorIs(t, err, unidrc.ErrInvalidParam)
}
