// Package app assembles a guild workspace: database, config, evidence
// storage, notifications and the engine on top of them.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/engine"
	"guildline/internal/filestore"
	"guildline/internal/migrate"
	"guildline/internal/notify"
)

type Options struct {
	Workspace string
	Logger    zerolog.Logger
	// WebhookSecret is sent with every webhook delivery when set.
	WebhookSecret string
	// RequireConfig fails when guildline.yml is missing instead of
	// falling back to defaults.
	RequireConfig bool
}

type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open opens the workspace database, applies pending migrations and wires
// the engine. The caller must Close the returned App.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	opts.Logger.Debug().Int("schema_version", version).Str("db", db.Path(opts.Workspace)).Msg("workspace opened")

	files := filestore.Disk{Dir: db.EvidenceDir(opts.Workspace)}
	eng := engine.New(conn, cfg, files, Notifier(cfg, opts.Logger, opts.WebhookSecret), opts.Logger)
	return &App{DB: conn, Config: cfg, Engine: eng}, nil
}

func (a *App) Close() error { return a.DB.Close() }

func loadConfig(opts Options) (*config.Config, error) {
	if opts.RequireConfig {
		return config.Load(opts.Workspace)
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Notifier logs every notice and also posts it to the configured webhook.
func Notifier(cfg *config.Config, logger zerolog.Logger, secret string) notify.Notifier {
	n := notify.Multi{notify.Log{Logger: logger}}
	if cfg.Notifications.WebhookURL != "" {
		n = append(n, notify.Webhook{
			URL:     cfg.Notifications.WebhookURL,
			Secret:  secret,
			Timeout: time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second,
		})
	}
	return n
}
