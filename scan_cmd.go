package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/muesli/gitcha"
	"github.com/spf13/cobra"
)

var scanShowAll bool

// samplePatterns are the glob patterns scan hands to gitcha.
var samplePatterns = []string{"*.wav", "*.wav.zst"}

var scanCmd = &cobra.Command{
	Use:   "scan [DIR]",
	Short: "Find sample files under a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = expandPath(args[0])
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}

		var ch chan gitcha.SearchResult
		if scanShowAll {
			ch, err = gitcha.FindAllFilesExcept(dir, samplePatterns, nil)
		} else {
			ch, err = gitcha.FindFilesExcept(dir, samplePatterns, nil)
		}
		if err != nil {
			return fmt.Errorf("unable to scan %s: %w", dir, err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		count := 0
		for res := range ch {
			rel, err := filepath.Rel(dir, res.Path)
			if err != nil {
				rel = res.Path
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				rel,
				humanize.Bytes(uint64(res.Info.Size())),
				humanize.Time(res.Info.ModTime()))
			count++
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%d sample %s found in %s\n", count, plural("file", count), dir)
		return nil
	},
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func init() {
	scanCmd.Flags().BoolVarP(&scanShowAll, "all", "a", false, "include files ignored by .gitignore")
}
