package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runtimeboot/runtimeboot/internal/config"
	"github.com/runtimeboot/runtimeboot/pkg/archive"
	"github.com/runtimeboot/runtimeboot/pkg/db"
	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/setup"
	"github.com/runtimeboot/runtimeboot/pkg/storage"
	"github.com/runtimeboot/runtimeboot/pkg/transfer"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "history.db")
}

func openRepo(cfg *config.Config) (*db.Repository, error) {
	repo, err := db.NewRepository(historyPath(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

// loadDescriptor reads the descriptor for target, checking its signature
// first when a keyring is configured.
func loadDescriptor(cfg *config.Config, target string) (*descriptor.Descriptor, error) {
	if cfg.DescriptorKeyring != "" {
		sig := descriptor.FindSignature(cfg.DescriptorPath)
		if sig == "" {
			return nil, &descriptor.ParseError{Path: cfg.DescriptorPath, Err: fmt.Errorf("no detached signature found")}
		}
		return descriptor.LoadSigned(cfg.DescriptorPath, sig, cfg.DescriptorKeyring, target)
	}
	return descriptor.Load(cfg.DescriptorPath, target)
}

func newSetup(ctx context.Context, cfg *config.Config, repo *db.Repository) (*setup.Setup, error) {
	store, err := storage.NewClient(ctx, storage.Options{Region: cfg.S3Region, Endpoint: cfg.S3Endpoint})
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}

	engine := transfer.NewEngine(transfer.Options{
		PreflightTimeout: cfg.PreflightTimeout,
		HTTPTimeout:      cfg.HTTPTimeout,
		MaxSize:          cfg.MaxTotalSize,
		Store:            store,
	})

	return setup.New(ctx, setup.Options{
		StateDir:  cfg.StateDir,
		Repo:      repo,
		Engine:    engine,
		Extractor: archive.NewExtractor(cfg.Limits()),
	})
}

// openSink is replaced in tests.
var openSink = newSink

// newSink returns the progress sink for the configured UI and a function
// that releases it.
func newSink(ctx context.Context, cfg *config.Config) (progress.Sink, func()) {
	if cfg.UI == config.UINone {
		return progress.Noop{}, func() {}
	}
	console := progress.NewConsole(os.Stderr)
	stop := console.WatchInterrupt(ctx)
	return console, stop
}

// failureMessage turns a failed outcome into the message shown to the user.
func failureMessage(out setup.Outcome) error {
	switch out.Kind() {
	case errors.KindServerUnreachable:
		return fmt.Errorf("%v\nPlease ensure you are connected to the internet and try again", out.Err)
	case errors.KindHashMismatch:
		return fmt.Errorf("runtime setup aborted: %v", out.Err)
	default:
		return errors.Wrap(out.Err, "runtime setup failed")
	}
}
