// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN,required,notEmpty"`
	CommandPrefix  string   `env:"COMMAND_PREFIX" envDefault:"~"`
	GuildBlacklist []string `env:"GUILD_BLACKLIST" envSeparator:","`

	ScratchDir           string        `env:"SCRATCH_DIR"`
	ScratchCleanup       bool          `env:"SCRATCH_CLEANUP" envDefault:"true"`
	ScratchMaxAge        time.Duration `env:"SCRATCH_MAX_AGE" envDefault:"1h"`
	ScratchSweepInterval time.Duration `env:"SCRATCH_SWEEP_INTERVAL" envDefault:"10m"`

	SessionGuard bool `env:"SESSION_GUARD" envDefault:"true"`

	FetchMaxAttempts int   `env:"FETCH_MAX_ATTEMPTS" envDefault:"3"`
	FetchMaxBytes    int64 `env:"FETCH_MAX_BYTES" envDefault:"26214400"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	StatusAddr  string `env:"STATUS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads envFile (if present) into the process environment and parses
// the result into a Config. A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "doorbell")
	}
	cfg.CommandPrefix = strings.TrimSpace(cfg.CommandPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.CommandPrefix == "" {
		return errors.New("COMMAND_PREFIX must not be blank")
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1, got %d", c.FetchMaxAttempts)
	}
	if c.FetchMaxBytes <= 0 {
		return fmt.Errorf("FETCH_MAX_BYTES must be positive, got %d", c.FetchMaxBytes)
	}
	if !c.ScratchCleanup && c.ScratchSweepInterval <= 0 {
		return errors.New("SCRATCH_SWEEP_INTERVAL must be positive when SCRATCH_CLEANUP is off")
	}
	return nil
}

// IsGuildBlacklisted reports whether guildID is in GUILD_BLACKLIST.
func (c *Config) IsGuildBlacklisted(guildID string) bool {
	for _, id := range c.GuildBlacklist {
		if strings.TrimSpace(id) == guildID {
			return true
		}
	}
	return false
}
