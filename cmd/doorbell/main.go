package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/doorbell/internal/audio"
	"github.com/keshon/doorbell/internal/config"
	"github.com/keshon/doorbell/internal/discord"
	"github.com/keshon/doorbell/internal/fetch"
	"github.com/keshon/doorbell/internal/ingest"
	"github.com/keshon/doorbell/internal/logger"
	"github.com/keshon/doorbell/internal/scratch"
	"github.com/keshon/doorbell/internal/session"
	"github.com/keshon/doorbell/internal/sound"
	"github.com/keshon/doorbell/internal/status"
	"github.com/keshon/doorbell/internal/storage"
	"github.com/keshon/doorbell/internal/version"
	"github.com/keshon/doorbell/pkg/cmd"
	"github.com/keshon/doorbell/pkg/jobmgr"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          version.AppName,
		Short:        "Discord bot that plays a sound when someone joins a voice channel",
		SilenceUsage: true,
		RunE:         runBot,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an env file to load before reading the environment")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve greetings",
		RunE:  runBot,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintln(c.OutOrStdout(), version.String())
		},
	})

	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runBot(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	log.Info().Str("version", version.Version).Msgf("Starting %s bot...", version.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.StoragePath, logger.Component(log, "storage"))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing storage")
		}
	}()

	scratchStore, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		return err
	}

	bot, err := discord.New(discord.Options{
		Token:       cfg.DiscordToken,
		Prefix:      cfg.CommandPrefix,
		Blacklisted: cfg.IsGuildBlacklisted,
		Logger:      logger.Component(log, "discord"),
	})
	if err != nil {
		return err
	}

	registry := sound.NewRegistry()

	ingestor := ingest.New(
		fetch.New(fetch.Options{
			MaxAttempts: cfg.FetchMaxAttempts,
			MaxBytes:    cfg.FetchMaxBytes,
			Logger:      logger.Component(log, "fetch"),
		}),
		scratchStore,
		audio.NewDecoder(cfg.FFmpegPath),
		registry,
		discord.NewReplier(bot.Session()),
		ingest.Options{
			Cleanup:  cfg.ScratchCleanup,
			Recorder: store,
			Logger:   logger.Component(log, "ingest"),
		},
	)
	bot.Commands().Register(cmd.Apply(
		discord.SetCommand(ingestor),
		discord.WithGuildOnly(),
		discord.WithCommandLogger(store, logger.Component(log, "discord")),
	))
	for _, c := range bot.Commands().All() {
		log.Debug().Str("command", c.Name()).Str("description", c.Description()).Msg("Command registered")
	}

	sessionLog := logger.Component(log, "session")
	orchestrator := session.New(registry, discord.NewVoiceTransport(bot.Session(), sessionLog), session.Options{
		Guard:        cfg.SessionGuard,
		OnTransition: countPlays(store, sessionLog),
		Logger:       sessionLog,
	})
	bot.SetGreeter(orchestrator)

	jobs := jobmgr.NewManager(logger.Component(log, "jobs"))
	defer jobs.StopAll()

	if !cfg.ScratchCleanup {
		sweepLog := logger.Component(log, "scratch")
		if err := jobs.StartAsync(ctx, "scratch-sweeper", func(ctx context.Context) error {
			return scratch.RunSweeper(ctx, scratchStore, cfg.ScratchSweepInterval, cfg.ScratchMaxAge, sweepLog)
		}); err != nil {
			return err
		}
	}

	if cfg.StatusAddr != "" {
		srv := status.New(registry, orchestrator, store, status.Options{
			Addr:   cfg.StatusAddr,
			Ready:  bot.Ready,
			Logger: logger.Component(log, "status"),
		})
		if err := jobs.StartAsync(ctx, "status-server", srv.Run); err != nil {
			return err
		}
	}

	log.Info().Strs("jobs", jobs.List()).Msg("Background jobs started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down...")
		cancel()
		runErr = <-errCh
	case runErr = <-errCh:
		cancel()
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("Discord bot error")
		return runErr
	}
	log.Info().Msg("Discord bot exited cleanly")
	return nil
}

// countPlays bumps the guild's play counter whenever a clip starts playing.
func countPlays(store *storage.Storage, log zerolog.Logger) func(session.Transition) {
	return func(tr session.Transition) {
		if tr.To != session.Playing {
			return
		}
		if err := store.IncrementPlays(tr.GuildID); err != nil {
			log.Warn().Err(err).Str("guild", tr.GuildID).Msg("Failed to count play")
		}
	}
}
