package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/llehouerou/go-unidrc"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// Report is the parsed metadata and the selection decision.
type Report struct {
	CodecMode        string           `yaml:"codec_mode" json:"codec_mode"`
	BaseChannelCount int              `yaml:"base_channel_count" json:"base_channel_count"`
	Downmix          []DownmixReport  `yaml:"downmix,omitempty" json:"downmix,omitempty"`
	DRCSets          []DRCSetReport   `yaml:"drc_sets" json:"drc_sets"`
	Loudness         []LoudnessReport `yaml:"loudness,omitempty" json:"loudness,omitempty"`
	Selection        *SelectionReport `yaml:"selection,omitempty" json:"selection,omitempty"`
}

// DownmixReport describes one downmix target of the configuration.
type DownmixReport struct {
	ID                 int  `yaml:"id" json:"id"`
	TargetChannelCount int  `yaml:"target_channel_count" json:"target_channel_count"`
	TargetLayout       int  `yaml:"target_layout" json:"target_layout"`
	Coefficients       bool `yaml:"coefficients" json:"coefficients"`
}

// DRCSetReport describes one signalled DRC set.
type DRCSetReport struct {
	ID                  int      `yaml:"id" json:"id"`
	Effects             []string `yaml:"effects" json:"effects"`
	DownmixIDs          []int    `yaml:"downmix_ids" json:"downmix_ids"`
	ChannelCount        int      `yaml:"channel_count" json:"channel_count"`
	Groups              int      `yaml:"groups" json:"groups"`
	Multiband           bool     `yaml:"multiband" json:"multiband"`
	TargetLoudnessUpper *float32 `yaml:"target_loudness_upper,omitempty" json:"target_loudness_upper,omitempty"`
	TargetLoudnessLower *float32 `yaml:"target_loudness_lower,omitempty" json:"target_loudness_lower,omitempty"`
	DependsOn           *int     `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// LoudnessReport is one loudnessInfo entry. Absent values are omitted.
type LoudnessReport struct {
	DrcSetID        int      `yaml:"drc_set_id" json:"drc_set_id"`
	DownmixID       int      `yaml:"downmix_id" json:"downmix_id"`
	Album           bool     `yaml:"album,omitempty" json:"album,omitempty"`
	SamplePeakLevel *float32 `yaml:"sample_peak_level,omitempty" json:"sample_peak_level,omitempty"`
	TruePeakLevel   *float32 `yaml:"true_peak_level,omitempty" json:"true_peak_level,omitempty"`
	ProgramLoudness *float32 `yaml:"program_loudness,omitempty" json:"program_loudness,omitempty"`
	AnchorLoudness  *float32 `yaml:"anchor_loudness,omitempty" json:"anchor_loudness,omitempty"`
}

// SelectionReport is the selection decision for the configured
// parameters.
type SelectionReport struct {
	SelectedIDs         []int    `yaml:"selected_ids" json:"selected_ids"`
	ActiveDownmixID     int      `yaml:"active_downmix_id" json:"active_downmix_id"`
	TargetChannelCount  int      `yaml:"target_channel_count" json:"target_channel_count"`
	TargetLayout        int      `yaml:"target_layout" json:"target_layout"`
	NormalizationGainDB float32  `yaml:"normalization_gain_db" json:"normalization_gain_db"`
	OutputLoudness      *float32 `yaml:"output_loudness,omitempty" json:"output_loudness,omitempty"`
	OutputPeakLevel     *float32 `yaml:"output_peak_level,omitempty" json:"output_peak_level,omitempty"`
	Boost               float32  `yaml:"boost" json:"boost"`
	Compress            float32  `yaml:"compress" json:"compress"`
}

var effectNames = []struct {
	bit  syntax.Effect
	name string
}{
	{syntax.EffectNight, "night"},
	{syntax.EffectNoisy, "noisy"},
	{syntax.EffectLimited, "limited"},
	{syntax.EffectLowLevel, "low_level"},
	{syntax.EffectDialog, "dialog"},
	{syntax.EffectGeneralCompr, "general"},
	{syntax.EffectExpand, "expand"},
	{syntax.EffectArtistic, "artistic"},
	{syntax.EffectClipping, "clipping"},
	{syntax.EffectFade, "fade"},
	{syntax.EffectDuckOther, "duck_other"},
	{syntax.EffectDuckSelf, "duck_self"},
}

func effectList(e syntax.Effect) []string {
	names := []string{}
	for _, n := range effectNames {
		if e.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	return names
}

func ptr[T any](v T) *T { return &v }

func buildReport(dec *unidrc.Decoder) *Report {
	r := &Report{}
	cfg := dec.Config()
	if cfg != nil {
		r.CodecMode = "mpegd"
		if cfg.Mode == syntax.ModeMPEGH {
			r.CodecMode = "mpegh"
		}
		r.BaseChannelCount = cfg.ChannelLayout.BaseChannelCount
		for _, d := range cfg.Downmix {
			r.Downmix = append(r.Downmix, DownmixReport{
				ID:                 int(d.ID),
				TargetChannelCount: d.TargetChannelCount,
				TargetLayout:       int(d.TargetLayout),
				Coefficients:       d.CoefficientsPresent,
			})
		}
		coef := cfg.CoefficientsAt(syntax.LocationSelected)
		for i := range cfg.Instructions {
			if in := &cfg.Instructions[i]; !in.IsVirtual() {
				r.DRCSets = append(r.DRCSets, setReport(in, coef))
			}
		}
	}
	if ls := dec.Loudness(); ls != nil {
		r.Loudness = loudnessReport(ls)
	}

	if sel, ok := dec.Selection(); ok {
		s := &SelectionReport{
			SelectedIDs:         sel.SelectedIDs,
			ActiveDownmixID:     int(sel.ActiveDownmixID),
			TargetChannelCount:  sel.TargetChannelCount,
			TargetLayout:        int(sel.TargetLayout),
			NormalizationGainDB: sel.LoudnessNormalizationGainDB,
			Boost:               sel.Boost,
			Compress:            sel.Compress,
		}
		if sel.OutputLoudnessKnown {
			s.OutputLoudness = ptr(sel.OutputLoudness)
		}
		if sel.OutputPeakLevelKnown {
			s.OutputPeakLevel = ptr(sel.OutputPeakLevel)
		}
		r.Selection = s
	}
	return r
}

func setReport(in *syntax.Instructions, coef *syntax.Coefficients) DRCSetReport {
	s := DRCSetReport{
		ID:           in.ID,
		Effects:      effectList(in.Effect),
		DownmixIDs:   make([]int, len(in.DownmixIDs)),
		ChannelCount: in.ChannelCount,
		Groups:       len(in.Groups),
	}
	for i, id := range in.DownmixIDs {
		s.DownmixIDs[i] = int(id)
	}
	if coef != nil {
		for _, g := range in.Groups {
			if g.GainSetIndex >= 0 && g.GainSetIndex < len(coef.GainSets) && coef.GainSets[g.GainSetIndex].BandCount > 1 {
				s.Multiband = true
			}
		}
	}
	if in.TargetLoudnessPresent {
		s.TargetLoudnessUpper = ptr(in.TargetLoudnessUpper)
		s.TargetLoudnessLower = ptr(in.TargetLoudnessLower)
	}
	if in.DependsOnPresent {
		s.DependsOn = ptr(in.DependsOn)
	}
	return s
}

func loudnessReport(ls *syntax.LoudnessInfoSet) []LoudnessReport {
	var out []LoudnessReport
	add := func(infos []syntax.LoudnessInfo, album bool) {
		for _, li := range infos {
			lr := LoudnessReport{DrcSetID: li.DrcSetID, DownmixID: int(li.DownmixID), Album: album}
			if li.SamplePeakLevelPresent {
				lr.SamplePeakLevel = ptr(li.SamplePeakLevel)
			}
			if li.TruePeakLevelPresent {
				lr.TruePeakLevel = ptr(li.TruePeakLevel)
			}
			for _, m := range li.Measurements {
				switch m.MethodDefinition {
				case syntax.MethodProgramLoudness:
					lr.ProgramLoudness = ptr(m.Value)
				case syntax.MethodAnchorLoudness:
					lr.AnchorLoudness = ptr(m.Value)
				}
			}
			out = append(out, lr)
		}
	}
	add(ls.Info, false)
	add(ls.Album, true)
	return out
}

func writeReport(w io.Writer, r *Report, format string) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		data, err := sonic.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	return fmt.Errorf("unknown report format %q", format)
}
