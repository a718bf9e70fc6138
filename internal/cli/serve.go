package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/memstore"
	"github.com/rescale/rescale-foldernav/internal/navigator"
	"github.com/rescale/rescale-foldernav/internal/server"
)

// newServeCmd creates the 'serve' command.
func newServeCmd() *cobra.Command {
	var listen, serverKey, deletePolicy string
	var noSeed bool
	var latency time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the folder API",
		Long: `Run the folder API server that the http backend talks to.

With the default (http) or memory backend the tree lives in memory and
starts from a sample Reports/Dashboards tree unless --no-seed is given.
With --backend s3 or azure the API fronts the configured bucket.

Example:
  rescale-foldernav serve --listen :8080 --delete-policy cascade
  rescale-foldernav serve --latency 500ms
  rescale-foldernav --backend s3 serve --server-key secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("server-key") {
				cfg.Server.APIKey = serverKey
			}
			if cmd.Flags().Changed("delete-policy") {
				cfg.Server.DeletePolicy = deletePolicy
			}
			if noSeed {
				cfg.Server.Seed = false
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			ctx := GetContext()
			log := GetLogger()

			var svc navigator.FolderService
			switch cfg.Backend {
			case config.BackendHTTP, config.BackendMemory:
				policy, err := memstore.ParseDeletePolicy(cfg.Server.DeletePolicy)
				if err != nil {
					return err
				}
				svc = memstore.New(memstore.Options{
					DeletePolicy: policy,
					Seed:         cfg.Server.Seed,
					Latency:      latency,
					Logger:       log.Named("memstore"),
				})
			default:
				svc, err = getFolderService(ctx, cfg)
				if err != nil {
					return err
				}
			}

			log.Info().
				Str("listen", cfg.Server.Listen).
				Str("backend", cfg.Backend).
				Str("delete_policy", cfg.Server.DeletePolicy).
				Bool("auth", cfg.Server.APIKey != "").
				Msg("Starting folder API")

			srv := server.New(cfg.Server.Listen, svc, server.Options{
				APIKey: cfg.Server.APIKey,
				Logger: log.Named("server"),
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default [server] listen, :8080)")
	cmd.Flags().StringVar(&serverKey, "server-key", "", "Require this API key from clients")
	cmd.Flags().StringVar(&deletePolicy, "delete-policy", "", "Non-empty folder deletes: reject or cascade")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Start from an empty root instead of the sample tree")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay every in-memory call by this long")
	return cmd
}
