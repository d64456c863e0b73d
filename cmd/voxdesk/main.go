// Command voxdesk is a voice and text front-end for a Gemini Live assistant
// with local tools, plus the webhook and MCP servers that share those tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "voxdesk",
		Short: "Real-time voice assistant with local tools",
		Long: `voxdesk streams your microphone to a Gemini Live session, plays the
spoken reply and answers the model's tool calls locally.

The profile in the config file selects the tool set:
  complaints  a complaint desk that stores customer names and addresses
  weather     a weather assistant backed by weatherapi.com

Secrets are read from the environment (or a .env file):
  GEMINI_API_KEY, WEATHER_API_KEY, WHATSAPP_VERIFY_TOKEN, WHATSAPP_APP_SECRET`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config; missing files are ignored")

	voice := newVoiceCmd(flags)
	root.AddCommand(
		voice,
		newChatCmd(flags),
		newWebhookCmd(flags),
		newMCPCmd(flags),
		newDevicesCmd(),
	)
	// A bare "voxdesk" starts a voice session.
	root.RunE = voice.RunE
	return root
}

// app is what every command needs after startup: the validated config
// and the process logger.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	logLevel *slog.LevelVar
}

// load reads .env, the config file and the flag overrides, and installs the
// process logger.
func load(flags *globalFlags) (*app, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found: %w", flags.configPath, err)
		}
		return nil, err
	}
	if flags.logLevel != "" {
		lvl := config.LogLevel(flags.logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", flags.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}

	logger, level := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("voxdesk starting",
		"version", version,
		"config", flags.configPath,
		"profile", cfg.Profile,
		"log_level", cfg.Server.LogLevel,
	)
	return &app{cfg: cfg, log: logger, logLevel: level}, nil
}

// newLogger returns a text logger on stderr whose level can be changed at
// runtime through the returned LevelVar.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := &slog.LevelVar{}
	lv.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
