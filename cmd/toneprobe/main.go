// Command toneprobe classifies a captured audio file offline. It exists
// for tuning thresholds against real carrier recordings without standing
// up Asterisk.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zaf/g711"

	"github.com/phatjmo/asterisk-cpa/internal/cpa"
	"github.com/phatjmo/asterisk-cpa/internal/dsp"
)

func main() {
	format := flag.String("format", "ulaw", "Audio encoding: ulaw, alaw or slin")
	silence := flag.Int("silence", 250, "Silence threshold in ms")
	total := flag.Int("total", 5000, "Analysis budget in ms")
	energy := flag.Float64("energy", dsp.DefaultSilenceFloor, "RMS energy below which a frame is silence")
	verbose := flag.Bool("v", false, "Print the label of every frame")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: toneprobe [flags] <capture-file>")
		flag.Usage()
		os.Exit(1)
	}

	outcome, err := probe(flag.Arg(0), *format, *silence, *total, *energy, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("outcome: %s\n", outcome)
	fmt.Printf("status:  %s\n", outcome.Status())
}

func probe(path, format string, silenceMS, totalMS int, energy float64, verbose bool) (cpa.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cpa.OutcomeUnknown, err
	}

	pcm, err := decode(data, format)
	if err != nil {
		return cpa.OutcomeUnknown, err
	}

	det := dsp.NewDetector(energy)
	src := &fileSource{pcm: pcm, det: det, verbose: verbose}

	thresholds := cpa.DefaultThresholds().
		WithSilenceWindow(time.Duration(silenceMS) * time.Millisecond)
	classifier := cpa.New(thresholds,
		cpa.WithBudget(time.Duration(totalMS)*time.Millisecond),
	)
	return classifier.Classify(src), nil
}

func decode(data []byte, format string) ([]int16, error) {
	switch format {
	case "ulaw":
		return dsp.PCMFromLE(g711.DecodeUlaw(data)), nil
	case "alaw":
		return dsp.PCMFromLE(g711.DecodeAlaw(data)), nil
	case "slin":
		return dsp.PCMFromLE(data), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// fileSource replays a decoded capture one block at a time.
type fileSource struct {
	pcm     []int16
	det     *dsp.Detector
	pos     int
	frame   int
	verbose bool
}

func (f *fileSource) Poll(_ time.Duration) (cpa.Sample, error) {
	if f.pos >= len(f.pcm) {
		return cpa.Sample{}, cpa.ErrStreamEnded
	}
	end := f.pos + dsp.BlockSize
	if end > len(f.pcm) {
		end = len(f.pcm)
	}
	block := f.pcm[f.pos:end]
	f.pos = end

	label := f.det.Analyze(block)
	duration := time.Duration(len(block)) * time.Second / dsp.SampleRate
	if f.verbose {
		fmt.Printf("frame %4d  %s\n", f.frame, label)
	}
	f.frame++
	return cpa.Sample{Label: label, Duration: duration}, nil
}
