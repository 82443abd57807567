package main

import (
	"context"
	"fmt"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/playback"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play FILE.wav",
	Short: "Play a WAV clip on the default output device",
	Args:  cobra.ExactArgs(1),
	RunE:  playClip,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func playClip(cmd *cobra.Command, args []string) error {
	clip, err := audio.LoadClip(args[0])
	if err != nil {
		return err
	}

	backend, err := audio.New(cfg.Audio, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer backend.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := interrupts()
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info().
		Str("file", args[0]).
		Int("channels", clip.Channels).
		Int("sample_rate", clip.SampleRate).
		Int("frames", clip.Frames()).
		Msg("Playing clip")

	if err := playback.New(backend, log).Play(ctx, clip); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
