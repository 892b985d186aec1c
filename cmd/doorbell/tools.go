package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/config"
	"github.com/keshon/doorbell/internal/storage"
)

// statsCmd prints stored guild metadata without connecting to Discord.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [guild-id...]",
		Short: "Print stored registration history and play counts",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.StoragePath, zerolog.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			guilds := args
			if len(guilds) == 0 {
				guilds = store.Guilds()
			}

			out := make([]storage.Stats, 0, len(guilds))
			for _, id := range guilds {
				st, err := store.Stats(id)
				if err != nil {
					return fmt.Errorf("guild %s: %w", id, err)
				}
				out = append(out, st)
			}

			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// probeCmd decodes a local file the same way uploads are decoded.
func probeCmd() *cobra.Command {
	var ffmpegPath string
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Decode an audio file and report its length",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			clip, err := audio.NewDecoder(ffmpegPath).Decode(c.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %d frames, %s\n", args[0], clip.Frames(), clip.Duration())
			return nil
		},
	}
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "ffmpeg", "Path to the ffmpeg binary")
	return cmd
}
