// Command drcinfo inspects Unified DRC payloads and applies DRC to raw
// PCM.
//
// Usage:
//
//	drcinfo synth -o config.bin [-gains gains.bin] [-loudness loudness.bin]
//	drcinfo inspect -drc config.bin [-loudness loudness.bin] [-config params.yaml] [-format yaml|json]
//	drcinfo apply -drc config.bin -gains gains.bin -in in.pcm -out out.pcm [-config params.yaml]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: drcinfo <command> [options]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  synth    write a demo DRC config, loudness payload and gain stream")
	fmt.Fprintln(os.Stderr, "  inspect  print parsed DRC metadata and the DRC set selection")
	fmt.Fprintln(os.Stderr, "  apply    apply DRC to raw s16le PCM")
	fmt.Fprintln(os.Stderr, "\nRun 'drcinfo <command> -h' for command options.")
}

func run(args []string) error {
	if len(args) < 1 {
		usage()
		return flag.ErrHelp
	}
	switch args[0] {
	case "synth":
		return runSynth(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "apply":
		return runApply(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	}
	usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "drcinfo:", err)
		os.Exit(1)
	}
}
