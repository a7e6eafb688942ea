package util

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/syncbench/tdk/pkg/config"
	"github.com/syncbench/tdk/pkg/system"
)

type contextKey struct {
	name string
}

var (
	SystemManagerKey = contextKey{name: "context key for storing the system manager"}
	ConfigKey        = contextKey{name: "context key for storing the loaded config"}
)

func GetCleanupManager(ctx context.Context) *system.CleanupManager {
	return ctx.Value(SystemManagerKey).(*system.CleanupManager)
}

// GetConfig returns the configuration loaded by the root command.
func GetConfig(cmd *cobra.Command) config.Config {
	return cmd.Context().Value(ConfigKey).(config.Config)
}

// AnnotationSkipConfig marks commands that run without an environment config.
const AnnotationSkipConfig = "tdk/skip-config"
