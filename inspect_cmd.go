package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/samplebank/internal/sample"
)

var (
	inspectPerc     bool
	inspectReversed bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show a sample's layout and memory footprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := expandPath(args[0])
		if !isSampleFile(path) {
			return fmt.Errorf("%s is not a sample file", path)
		}

		bank, err := newBank()
		if err != nil {
			return err
		}
		defer bank.Close()

		s, err := bank.Open(path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "name\t%s\n", s.Name)
		fmt.Fprintf(w, "sample rate\t%d Hz\n", s.SampleRate)
		fmt.Fprintf(w, "channels\t%d\n", s.NumChannels)
		fmt.Fprintf(w, "bit depth\t%d\n", s.ByteDepth*8)
		fmt.Fprintf(w, "frames\t%s\n", humanize.Comma(int64(s.LengthInSamples)))
		fmt.Fprintf(w, "duration\t%d ms\n", s.LengthMSec())
		fmt.Fprintf(w, "payload\t%s\n", humanize.Bytes(uint64(s.AudioDataLengthBytes)))
		fmt.Fprintf(w, "clusters\t%d x %s\n", s.NumClusters(),
			humanize.Bytes(uint64(int(1)<<s.ClusterSizeMagnitude())))
		if err := w.Flush(); err != nil {
			return err
		}

		if inspectPerc {
			if err := printEnvelope(bank, s); err != nil {
				return err
			}
		}
		return nil
	},
}

// printEnvelope builds the percussive envelope over the whole waveform
// and prints a coarse picture of it.
func printEnvelope(bank bankRunner, s *sample.Sample) error {
	dir := sample.Forward
	if inspectReversed {
		dir = sample.Reversed
	}

	var pins sample.PinSet
	defer pins.ReleaseAll()

	if err := buildEnvelope(bank, s, &pins, dir); err != nil {
		return err
	}

	numPix := ((s.LengthInSamples - 1) >> 7) + 1
	const columns = 64
	step := numPix / columns
	if step == 0 {
		step = 1
	}

	fmt.Printf("\nenvelope (%s, %d bytes):\n", dir, numPix)
	for pix := 0; pix < numPix; pix += step {
		view, ok := s.LookupPercCache(pix, dir)
		if !ok {
			fmt.Print(".")
			continue
		}
		fmt.Print(envelopeGlyph(view.ByteAt(pix)))
	}
	fmt.Println()
	return nil
}

// buildEnvelope fills the percussive cache across the waveform in
// budgeted slices. The engine only reads source clusters that are
// already resident, so each slice's clusters are queued for loading and
// pinned, and the queue drained, before the fill reads them.
func buildEnvelope(bank bankRunner, s *sample.Sample, pins *sample.PinSet, dir sample.Direction) error {
	start, end := 0, s.LengthInSamples
	if dir == sample.Reversed {
		start, end = s.LengthInSamples-1, -1
	}

	const fillBudget = 1 << 16
	d := int(dir)
	for pos := start; pos != end; {
		sliceEnd := pos + fillBudget*d
		if (sliceEnd-end)*d > 0 {
			sliceEnd = end
		}

		if err := pinSourceRange(s, pins, pos, sliceEnd, dir); err != nil {
			return err
		}
		bank.RunPending(0)

		err := s.FillPercCache(pins, pos, sliceEnd, dir, fillBudget)
		pins.ReleaseLookahead()
		if err != nil {
			return fmt.Errorf("building envelope: %w", err)
		}
		pos = sliceEnd
	}
	return nil
}

// pinSourceRange queues loads for the source clusters covering the
// sample positions between from (inclusive) and to (exclusive, in
// direction order) and holds them as lookahead pins.
func pinSourceRange(s *sample.Sample, pins *sample.PinSet, from, to int, dir sample.Direction) error {
	lo, hi := from, to-1
	if dir == sample.Reversed {
		lo, hi = to+1, from
	}
	bps := s.BytesPerSample()
	loByte := s.AudioDataStartBytes + lo*bps
	hiByte := s.AudioDataStartBytes + hi*bps + bps - 1
	mag := s.ClusterSizeMagnitude()
	for index := loByte >> mag; index <= hiByte>>mag; index++ {
		if index < 0 || index >= s.NumClusters() {
			continue
		}
		c, err := s.GetCluster(index, sample.LoadEnqueue)
		if err != nil {
			return fmt.Errorf("loading source cluster %d: %w", index, err)
		}
		pins.AddLookahead(c)
		c.ReleaseReason()
	}
	return nil
}

// bankRunner is the slice of the bank the envelope builder needs.
type bankRunner interface {
	RunPending(max int) int
}

func envelopeGlyph(v uint8) string {
	glyphs := []string{" ", "_", ".", "-", "=", "+", "*", "#"}
	return glyphs[int(v)*len(glyphs)/256]
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectPerc, "perc", false, "build and print the percussive envelope")
	inspectCmd.Flags().BoolVar(&inspectReversed, "reversed", false, "build the envelope in reverse")
}
