// Package cli provides folder service helper functions.
package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/rescale/rescale-foldernav/internal/api"
	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/events"
	"github.com/rescale/rescale-foldernav/internal/http"
	"github.com/rescale/rescale-foldernav/internal/memstore"
	"github.com/rescale/rescale-foldernav/internal/navigator"
	"github.com/rescale/rescale-foldernav/internal/objstore"
)

// getFolderService builds the folder service selected by cfg.Backend.
// This is the standard way to reach the remote tree in CLI commands.
func getFolderService(ctx context.Context, cfg *config.Config) (navigator.FolderService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := GetLogger()
	http.SetLogger(log.Named("http"))

	switch cfg.Backend {
	case config.BackendHTTP:
		if err := promptProxyPassword(cfg); err != nil {
			return nil, err
		}
		client, err := api.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
		client.SetLogger(log.Named("api"))
		return client, nil

	case config.BackendMemory:
		policy, err := memstore.ParseDeletePolicy(cfg.Server.DeletePolicy)
		if err != nil {
			return nil, err
		}
		return memstore.New(memstore.Options{
			Seed:         cfg.Server.Seed,
			DeletePolicy: policy,
			Logger:       log.Named("memstore"),
		}), nil

	case config.BackendS3:
		bucket, err := objstore.NewS3Bucket(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return objstore.NewService(bucket, objstore.Options{
			Prefix:  cfg.S3.Prefix,
			Cascade: cfg.Server.DeletePolicy == string(memstore.DeleteCascade),
			Logger:  log.Named("s3"),
		}), nil

	case config.BackendAzure:
		bucket, err := objstore.NewAzureBucket(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return objstore.NewService(bucket, objstore.Options{
			Prefix:  cfg.Azure.Prefix,
			Cascade: cfg.Server.DeletePolicy == string(memstore.DeleteCascade),
			Logger:  log.Named("azure"),
		}), nil
	}
	return nil, config.ErrUnknownBackend
}

// newNavigator loads configuration and returns a navigator over the
// configured backend. The caller must Close it.
func newNavigator(ctx context.Context, bus *events.EventBus) (*navigator.Navigator, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	svc, err := getFolderService(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	nav := navigator.New(svc, navigator.Options{
		HistoryLimit:     cfg.Navigation.HistoryLimit,
		FetchConcurrency: cfg.Navigation.FetchConcurrency,
		FetchTimeout:     cfg.FetchTimeout(),
		EventBus:         bus,
		Logger:           GetLogger().Named("navigator"),
	})
	return nav, cfg, nil
}

// promptProxyPassword asks for the proxy password on a terminal when the
// proxy mode needs one and none is configured.
func promptProxyPassword(cfg *config.Config) error {
	if !http.NeedsProxyPassword(cfg) {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("proxy mode %s needs a password: set [proxy] password", cfg.ProxyMode)
	}
	fmt.Fprintf(os.Stderr, "Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read proxy password: %w", err)
	}
	cfg.ProxyPassword = string(pw)
	return nil
}
