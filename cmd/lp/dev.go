package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"launchpad/internal/app"
	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/engine"
	"launchpad/internal/render"
	"launchpad/internal/server"
)

func devCmd() *cobra.Command {
	dev := &cobra.Command{
		Use:   "dev",
		Short: "Run and administer a local platform emulator",
		Long: `The emulator serves the platform API from a sqlite database so the CLI
and SDK can be exercised without an account. Invocation is not emulated.`,
	}
	dev.PersistentFlags().StringP("workspace", "w", ".", "directory holding .launchpad/emulator.db")
	dev.PersistentFlags().String("db", "", "database file (overrides --workspace)")
	dev.PersistentFlags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	for _, name := range []string{"workspace", "db", "jwt-secret"} {
		_ = viper.BindPFlag(name, dev.PersistentFlags().Lookup(name))
	}
	dev.AddCommand(devServeCmd())
	dev.AddCommand(devTokenCmd())
	dev.AddCommand(devAPIKeyCmd())
	dev.AddCommand(devGrantsCmd())
	dev.AddCommand(devEventsCmd())
	return dev
}

func emulatorDB() db.Config {
	return db.Config{Workspace: viper.GetString("workspace"), Path: viper.GetString("db")}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, e, err := app.Open(ctx, emulatorDB())
	if err != nil {
		return err
	}
	defer conn.Close()
	e.Logger = logger()
	return fn(ctx, e)
}

func devServeCmd() *cobra.Command {
	var addr, seedPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the emulator API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *config.Seed
			if seedPath != "" {
				var err error
				if seed, err = config.LoadSeed(seedPath); err != nil {
					return err
				}
			}
			log := render.NewServerLogger(os.Stderr)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				e.Logger = log
				if seed != nil {
					seeded, err := app.Bootstrap(ctx, e, seed)
					if err != nil {
						return err
					}
					if seeded {
						log.Info("emulator seeded", "seed", seedPath)
					} else {
						log.Info("emulator already populated, seed skipped", "seed", seedPath)
					}
				}
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
				handler, err := server.New(server.Config{Engine: e, Auth: authCfg, Logger: log})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Fprintf(os.Stderr, "Serving Launchpad emulator on http://%s (OpenAPI at /v1/openapi.json, docs at /v1/docs)\n", addr)
				fmt.Fprintf(os.Stderr, "Point the CLI at it with LAUNCHPAD_API_URL=http://%s\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&seedPath, "seed", "", "seed fixture (yaml, json or jsonc) applied to an empty database")
	return cmd
}

func devTokenCmd() *cobra.Command {
	var actor string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an emulator actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt-secret"), actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime; 0 never expires")
	return cmd
}

func devAPIKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "api-key", Short: "Manage emulator API keys"}
	keys.AddCommand(devAPIKeyCreateCmd())
	keys.AddCommand(devAPIKeyListCmd())
	return keys
}

func devAPIKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for an actor; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return render.Usage(fmt.Errorf("--actor required"))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				out := struct {
					ID      string `json:"id"`
					ActorID string `json:"actor_id"`
					Name    string `json:"name,omitempty"`
					Key     string `json:"key"`
				}{key.ID, key.ActorID, key.Name, secret}
				return printJSONOrTable(out, func() { fmt.Println(secret) })
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func devAPIKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys without their secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys, func() { render.APIKeys(os.Stdout, keys) })
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only this actor's keys")
	return cmd
}

func devGrantsCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Show the grants held by an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return render.Usage(fmt.Errorf("--actor required"))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				grants, err := e.Repo.ListGrants(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(grants, func() { render.Grants(os.Stdout, grants) })
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	return cmd
}

func devEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the emulator event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events, func() { render.Events(os.Stdout, events) })
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	return cmd
}
