// Package main provides the mediacache management CLI.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gophersatwork/mediacache"
)

var (
	// Version as provided by goreleaser.
	Version = ""

	cacheDir  string
	clearType string
	verbose   bool

	rootCmd = &cobra.Command{
		Use:          "mediacache",
		Short:        "Inspect and manage the media pipeline artifact cache",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Report entry counts and sizes, overall and per type",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			stats, err := cache.Stats()
			if err != nil {
				return err
			}

			fmt.Println("Cache statistics")
			for _, t := range mediacache.Types {
				ts := stats.PerType[t]
				fmt.Printf("  %-10s %4d entries  %s\n", t, ts.Entries, humanize.IBytes(uint64(ts.Size)))
			}
			fmt.Printf("  %-10s %4d entries  %s\n", "total", stats.Entries, humanize.IBytes(uint64(stats.Size)))
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list <type>",
		Short: "List entries of one cache type, most recently used first",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			t, ok := mediacache.ParseType(args[0])
			if !ok {
				return fmt.Errorf("unknown cache type %q (one of %v)", args[0], mediacache.Types)
			}

			cache, err := openCache()
			if err != nil {
				return err
			}
			rows, err := cache.List(t)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("no entries in %s cache\n", t)
				return nil
			}

			for _, row := range rows {
				fmt.Printf("%s  %9s  %s  %s\n",
					row.Key[:12],
					humanize.IBytes(uint64(row.Size)),
					row.AccessedAt.Format("2006-01-02 15:04"),
					row.Source)
			}
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Clear one cache type, or all of them",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var types []mediacache.Type
			if clearType != "" {
				t, ok := mediacache.ParseType(clearType)
				if !ok {
					return fmt.Errorf("unknown cache type %q (one of %v)", clearType, mediacache.Types)
				}
				types = append(types, t)
			}

			cache, err := openCache()
			if err != nil {
				return err
			}
			count, err := cache.Clear(types...)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d entries\n", count)
			return nil
		},
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every payload and remove entries that fail",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			removed, err := cache.Verify()
			if err != nil {
				return err
			}
			fmt.Printf("integrity sweep removed %d entries\n", removed)
			return nil
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <type> <inputs>...",
		Short: "Explain why a lookup would hit or miss",
		Long: `Explain why a lookup would hit or miss, reporting the derived key,
the metadata record location and every candidate payload path checked.

Inputs per type:
  audio     <url-or-query>
  stems     <audio-file>
  lyrics    <track> <artist>
  subtitles <lrc-file>
  videos    <audio-file> <subtitles-file> <resolution> <background>`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			inputs, err := keyInputsFromArgs(args[0], args[1:])
			if err != nil {
				return err
			}

			cache, err := openCache()
			if err != nil {
				return err
			}
			report, err := cache.Inspect(inputs)
			if err != nil {
				return err
			}

			fmt.Printf("type:     %s\n", report.Type)
			fmt.Printf("key:      %s\n", report.Key)
			fmt.Printf("metadata: %s (%s)\n", report.MetaPath, presence(report.MetaExists))
			if report.Source != "" {
				fmt.Printf("source:   %s\n", report.Source)
			}
			for _, p := range report.Payloads {
				if p.Exists {
					fmt.Printf("payload:  %s (present, %s)\n", p.Path, humanize.IBytes(uint64(p.Size)))
				} else {
					fmt.Printf("payload:  %s (MISSING)\n", p.Path)
				}
			}
			if verbose {
				fmt.Print(spew.Sdump(report))
			}
			return nil
		},
	}
)

func openCache() (*mediacache.Cache, error) {
	cfg, err := mediacache.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cfg.Dir = cacheDir
	}
	// Management commands always operate on the persisted cache, even when
	// the pipeline itself runs with caching off.
	cfg.Enabled = true
	return mediacache.OpenFromConfig(cfg)
}

func keyInputsFromArgs(typeArg string, rest []string) (mediacache.KeyInputs, error) {
	t, ok := mediacache.ParseType(typeArg)
	if !ok {
		return nil, fmt.Errorf("unknown cache type %q (one of %v)", typeArg, mediacache.Types)
	}

	switch t {
	case mediacache.TypeAudio:
		if len(rest) != 1 {
			return nil, fmt.Errorf("audio takes <url-or-query>")
		}
		return mediacache.AudioKey{URLOrQuery: rest[0]}, nil
	case mediacache.TypeStems:
		if len(rest) != 1 {
			return nil, fmt.Errorf("stems takes <audio-file>")
		}
		return mediacache.StemsKey{AudioPath: rest[0]}, nil
	case mediacache.TypeLyrics:
		if len(rest) != 2 {
			return nil, fmt.Errorf("lyrics takes <track> <artist>")
		}
		return mediacache.LyricsKey{Track: rest[0], Artist: rest[1]}, nil
	case mediacache.TypeSubtitles:
		if len(rest) != 1 {
			return nil, fmt.Errorf("subtitles takes <lrc-file>")
		}
		return mediacache.SubtitlesKey{LRCPath: rest[0]}, nil
	case mediacache.TypeVideos:
		if len(rest) != 4 {
			return nil, fmt.Errorf("videos takes <audio-file> <subtitles-file> <resolution> <background>")
		}
		return mediacache.VideoKey{
			AudioPath:     rest[0],
			SubtitlesPath: rest[1],
			Resolution:    rest[2],
			Background:    rest[3],
		}, nil
	}
	return nil, fmt.Errorf("unknown cache type %q", typeArg)
}

func presence(exists bool) string {
	if exists {
		return "present"
	}
	return "missing"
}

func init() {
	if Version != "" {
		rootCmd.Version = Version
	}

	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache root directory (default $MEDIACACHE_DIR or .cache)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	clearCmd.Flags().StringVar(&clearType, "type", "", "clear only this cache type")

	rootCmd.AddCommand(statsCmd, listCmd, clearCmd, verifyCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
