package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncbench/tdk/cmd/cli/info"
	"github.com/syncbench/tdk/cmd/cli/reset"
	"github.com/syncbench/tdk/cmd/cli/version"
	"github.com/syncbench/tdk/cmd/util"
	"github.com/syncbench/tdk/pkg/config"
	"github.com/syncbench/tdk/pkg/logger"
	"github.com/syncbench/tdk/pkg/system"
	"github.com/syncbench/tdk/pkg/telemetry"
)

// RootOptions are the flags shared by every command.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogType    string
}

func NewRootOptions() *RootOptions {
	return &RootOptions{
		ConfigPath: os.Getenv("TDK_CONFIG"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		LogType:    os.Getenv("LOG_TYPE"),
	}
}

func NewRootCmd() *cobra.Command {
	opts := NewRootOptions()

	rootCmd := &cobra.Command{
		Use:           "tdk",
		Short:         "Drive cross-platform sync test servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			logger.ConfigureLogging(opts.LogLevel, logger.LogType(strings.ToLower(opts.LogType)))

			telemetry.SetupFromEnvs()
			cm := system.NewCleanupManager()
			cm.RegisterCallback(telemetry.Cleanup)
			ctx = context.WithValue(ctx, util.SystemManagerKey, cm)

			if _, skip := cmd.Annotations[util.AnnotationSkipConfig]; !skip {
				cfg, err := config.Load(opts.ConfigPath)
				if err != nil {
					return err
				}
				ctx = context.WithValue(ctx, util.ConfigKey, cfg)
			}

			ctx, span := system.NewRootSpan(ctx, "tdk."+commandPath(cmd))
			ctx = context.WithValue(ctx, spanKey, span)

			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ctx.Value(spanKey).(trace.Span).End()
			return util.GetCleanupManager(ctx).Cleanup()
		},
	}

	fset := pflag.NewFlagSet("root", pflag.ContinueOnError)
	fset.StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath,
		"Path to the environment config file (yaml, json or toml). Defaults to $TDK_CONFIG.")
	fset.StringVar(&opts.LogLevel, "log-level", opts.LogLevel,
		"Log level: trace, debug, info, warn or error.")
	fset.StringVar(&opts.LogType, "log-type", opts.LogType,
		fmt.Sprintf("Log format: %q, %q or %q.", logger.LogTypeText, logger.LogTypeJSON, logger.LogTypeCombined))
	rootCmd.PersistentFlags().AddFlagSet(fset)

	rootCmd.AddCommand(info.NewCmd())
	rootCmd.AddCommand(reset.NewCmd())
	rootCmd.AddCommand(version.NewCmd())

	return rootCmd
}

func Execute() {
	// a .env file in the working directory may carry TDK_* and OTEL_* settings
	_ = godotenv.Load()

	rootCmd := NewRootCmd()

	// Ensure commands are able to stop cleanly if someone presses ctrl+c
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		util.Fatal(rootCmd, err)
	}
}

func commandPath(cmd *cobra.Command) string {
	var names []string
	for c := cmd; c.HasParent(); c = c.Parent() {
		names = append([]string{c.Name()}, names...)
	}
	return strings.Join(names, ".")
}

type contextKey struct {
	name string
}

var spanKey = contextKey{name: "context key for storing the root span"}
