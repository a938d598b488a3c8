package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"guildline/internal/app"
	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/engine"
	"guildline/internal/observability"
	"guildline/internal/repo"
	"guildline/internal/server"
)

var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "gl",
	Short: "Guildline CLI",
	Long: `Guildline runs an assassins guild: missions, coins and blood debts.
- Missions: created by members, approved by administrators, taken by an assassin, completed with evidence, then paid.
- Coins: every balance change is a ledger transaction; gl coins history shows yours.
- Blood debts: a mission paid in blood leaves its creator owing the assassin who did it; the assassin collects with a BLOOD_DEBT_COLLECTION mission.
- Information: buy the identity behind an alias for a fixed price.
Commands act as --actor-id (or GUILDLINE_ACTOR_ID) against the local workspace.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = observability.InitLogger("gl", viper.GetString("log-level"), viper.GetBool("log-json"))
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GUILDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "actor acting on the guild")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON instead of console output")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(debtCmd())
	rootCmd.AddCommand(coinsCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(assassinsCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var guild string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create guildline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(guild)), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Initialized guild %q in %s (database %s)\n", a.Config.Guild.Name, workspace, db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "The Guild", "guild name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing guildline.yml")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint an API bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("GUILDLINE_JWT_SECRET is required to sign tokens")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, engine.Requester{ActorID: args[0]})
				if err != nil {
					return err
				}
				token, err := server.SignToken(secret, req.ActorID, req.Role, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func serveCmd() *cobra.Command {
	var basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), DevLogin: devLogin, TokenTTL: 24 * time.Hour}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("GUILDLINE_JWT_SECRET is required for bearer auth")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				addr := viper.GetString("addr")
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdown)
				}()
				if devLogin {
					logger.Warn().Msg("dev login enabled: any registered actor can mint a token")
				}
				fmt.Printf("Serving Guildline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (local use only)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "Every committed change to missions, debts, balances and members, newest first. Administrators only.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				events, err := a.Engine.ListEvents(ctx, req, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events, table.Row{"ID", "TS", "Type", "Entity", "Actor"}, func(t table.Writer) {
					for _, ev := range events {
						t.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID})
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "by", "", "acting actor filter")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace:     viper.GetString("workspace"),
		Logger:        logger,
		WebhookSecret: viper.GetString("webhook-secret"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// requester is the actor the CLI acts as. The engine resolves its role.
func requester() engine.Requester {
	return engine.Requester{ActorID: viper.GetString("actor-id")}
}

func printJSONOrTable(v any, header table.Row, rows func(table.Writer)) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	rows(t)
	t.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref[T any](p *T) any {
	if p == nil {
		return ""
	}
	return *p
}

func isJSON() bool { return viper.GetBool("json") }
