// Command enfctl is an offline tool for working with mains-hum
// fingerprints: extract one from a raw PCM file, or compare two
// recordings without any mesh involvement.
//
// Input files are headerless 16-bit little-endian signed PCM, mono.
//
// # Usage
//
//	enfctl extract --in capture.pcm --rate 8000
//	enfctl compare --a capture-a.pcm --b capture-b.pcm --rate 8000
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/soundproof/enfmesh/enf"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:])
	case "compare":
		err = runCompare(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: enfctl extract --in FILE --rate HZ")
	fmt.Fprintln(os.Stderr, "       enfctl compare --a FILE --b FILE --rate HZ")
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	in := fs.String("in", "", "Input PCM file")
	rate := fs.Int("rate", 8000, "Sample rate in Hz")
	fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	fp, err := extractFile(*in, *rate)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(fp)
}

func runCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	fileA := fs.String("a", "", "First PCM file")
	fileB := fs.String("b", "", "Second PCM file")
	rate := fs.Int("rate", 8000, "Sample rate in Hz")
	fs.Parse(args)

	if *fileA == "" || *fileB == "" {
		return fmt.Errorf("--a and --b are required")
	}

	fpA, err := extractFile(*fileA, *rate)
	if err != nil {
		return fmt.Errorf("%s: %w", *fileA, err)
	}
	fpB, err := extractFile(*fileB, *rate)
	if err != nil {
		return fmt.Errorf("%s: %w", *fileB, err)
	}

	cmp, err := enf.Compare(fpA, fpB)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cmp)
}

func extractFile(path string, rate int) (*enf.Fingerprint, error) {
	samples, err := readPCM(path)
	if err != nil {
		return nil, err
	}

	extractor := enf.NewExtractor(enf.DefaultExtractorConfig())
	return extractor.Extract(samples, rate)
}

// readPCM loads headerless 16-bit little-endian signed PCM into
// normalized float samples.
func readPCM(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd byte count, not 16-bit PCM")
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples, nil
}
