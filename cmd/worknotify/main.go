// Command worknotify is a terminal client for work-management
// notifications: a live inbox fed over STOMP, desktop alerts, and
// navigation to the referenced task.
package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/worknotify/internal/alert"
	"github.com/nhle/worknotify/internal/api"
	"github.com/nhle/worknotify/internal/app"
	"github.com/nhle/worknotify/internal/credential"
	"github.com/nhle/worknotify/internal/enrich"
	"github.com/nhle/worknotify/internal/logger"
	"github.com/nhle/worknotify/internal/model"
	"github.com/nhle/worknotify/internal/theme"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worknotify:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("worknotify", pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "path to the config file")
	flags.Int64("user", 0, "user id to sign in as (overrides user_id)")
	flags.String("log-level", "", "log level: debug, info, warn or error (overrides log.level)")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("worknotify", version)
		return nil
	}

	cfg, err := model.LoadConfigWithFlags(*configPath, flags)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer func() { _ = log.Sync() }()
	theme.Use(cfg.Display.Theme)

	// Without a keyring the token can still come from the environment or
	// the config file, and new tokens cannot be stored.
	var tokens *credential.Vault
	token := cfg.API.Token
	if v, err := credential.Open(); err != nil {
		log.Warn("keyring unavailable", zap.Error(err))
	} else {
		tokens = v
		if cfg.UserID > 0 {
			tok, err := v.Token(cfg.UserID)
			if err != nil {
				log.Warn("reading API token", zap.Error(err))
			} else if tok != "" {
				token = tok
			}
		}
	}

	renderer := enrich.NewRenderer(cfg.Display.Locale)
	alerter := alert.NewDefault(cfg.Notifications, renderer, alert.FindPlayer(os.Stderr), log)
	defer alerter.Close()

	opts := app.Options{
		Config:     cfg,
		ConfigPath: *configPath,
		Token:      token,
		Client:     api.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout()),
		Alerter:    alerter,
		Renderer:   renderer,
		Logger:     log,
		Version:    version,
	}
	if tokens != nil {
		opts.Tokens = tokens
	}

	root := app.New(opts)
	log.Info("starting", zap.String("version", version), zap.Int64("user_id", cfg.UserID))

	final, err := tea.NewProgram(root, tea.WithAltScreen()).Run()
	if m, ok := final.(app.Model); ok {
		if cerr := m.Close(); cerr != nil {
			log.Warn("closing session", zap.Error(cerr))
		}
	} else {
		_ = root.Close()
	}
	if err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}
