package cmdutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/config"
)

// ConfigPaths are searched in order for config.yaml.
var ConfigPaths = []string{
	"/etc/pkce-session",
	"$HOME/.pkce-session",
	".",
}

type (
	BusinessFunc func(context.Context, *config.Config) error
	WrapperFunc  func(context.Context, BusinessFunc, *config.Config) error
)

func CobraCommand(use, short, long, buildInfo string, wrapperFunc WrapperFunc, businessFunc BusinessFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			err = wrapperFunc(cmd.Context(), businessFunc, cfg)
			if err != nil {
				return fmt.Errorf("running %s: %w", use, err)
			}

			return nil
		},
	}
}

// RunWithTelemetry initialises logging and OpenTelemetry before fn.
func RunWithTelemetry(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, true, fn, cfg)
}

// RunAsJob initialises logging only.
func RunAsJob(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, false, fn, cfg)
}

func run(ctx context.Context, withTelemetry bool, fn BusinessFunc, cfg *config.Config) error {
	// LoggerConfig
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}
	slogctx.Debug(ctx, "Starting the application", slog.String("application", cfg.Session.ApplicationName))

	// OpenTelemetry
	if withTelemetry {
		err = otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the telemetry")
		}
	}

	// Business Logic
	err = fn(ctx, cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to run the business logic")
	}

	return nil
}

func loadConfig(buildInfo string) (*config.Config, error) {
	defaultValues := map[string]any{}
	cfg := &config.Config{}

	err := commoncfg.LoadConfig(cfg, defaultValues, ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// Update Version
	err = commoncfg.UpdateConfigVersion(
		&cfg.BaseConfig,
		buildInfo,
	)
	if err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}
