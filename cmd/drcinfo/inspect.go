package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/llehouerou/go-unidrc"
)

// readPayloads feeds the config and optional loudness payload files to dec.
func readPayloads(dec *unidrc.Decoder, drcPath, loudnessPath string) error {
	data, err := os.ReadFile(drcPath)
	if err != nil {
		return err
	}
	if err := dec.ReadUniDrcConfig(unidrc.NewBitReader(data), 0); err != nil {
		return fmt.Errorf("%s: %w", drcPath, err)
	}
	if loudnessPath == "" {
		return nil
	}
	data, err = os.ReadFile(loudnessPath)
	if err != nil {
		return err
	}
	if err := dec.ReadLoudnessInfoSet(unidrc.NewBitReader(data), 0); err != nil {
		return fmt.Errorf("%s: %w", loudnessPath, err)
	}
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML parameter file")
	drc := fs.String("drc", "", "DRC config payload (required)")
	loudness := fs.String("loudness", "", "loudness info payload")
	format := fs.String("format", "yaml", "report format: yaml or json")
	out := fs.String("o", "", "report path, stdout if empty")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: drcinfo inspect -drc config.bin [options]")
		fmt.Fprintln(fs.Output(), "Prints the parsed DRC metadata and the DRC set selection.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *drc == "" {
		fs.Usage()
		return errors.New("inspect: -drc is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	dec, err := newDecoder(&cfg, unidrc.FunctionalRangeSelection, log)
	if err != nil {
		return err
	}
	defer dec.Close()

	if err := readPayloads(dec, *drc, *loudness); err != nil {
		return err
	}
	if err := dec.Preprocess(); err != nil {
		return fmt.Errorf("selection: %w", err)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		w = f
	}
	return writeReport(w, buildReport(dec), *format)
}
