package main

import (
	"encoding/json"
	"fmt"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/pipeline"
	"github.com/petems/spectra/internal/spectral"
	"github.com/spf13/cobra"
)

var levelsOnly bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE.wav",
	Short: "Analyze a WAV file and print one JSON line per spectrum",
	Long: `Feeds the first channel of a WAV file through the analyzer using the
configured window, smoothing and taper, and writes one JSON object per
spectrum to stdout with the trimmed bins and their band levels.`,
	Args: cobra.ExactArgs(1),
	RunE: analyzeFile,
}

func init() {
	analyzeCmd.Flags().BoolVar(&levelsOnly, "levels-only", false, "omit per-bin magnitudes")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeFile(cmd *cobra.Command, args []string) error {
	clip, err := audio.LoadClip(args[0])
	if err != nil {
		return err
	}

	opts, err := spectral.OptionsFromConfig(cfg.Analyzer)
	if err != nil {
		return err
	}
	opts.Logger = log

	enc := json.NewEncoder(cmd.OutOrStdout())
	frames := 0
	err = pipeline.AnalyzeClip(clip, opts, cfg.Consumer.Margin, func(f pipeline.Frame) error {
		frames++
		if levelsOnly {
			f.Bins = nil
		}
		return enc.Encode(f)
	})
	if err != nil {
		return fmt.Errorf("failed to analyze %s: %w", args[0], err)
	}

	log.Debug().Str("file", args[0]).Int("spectra", frames).Msg("Analysis finished")
	return nil
}
