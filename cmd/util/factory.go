package util

import (
	"github.com/spf13/cobra"

	"github.com/syncbench/tdk/pkg/client"
)

// NewFactory builds a started request factory from the loaded configuration
// and registers its teardown with the cleanup manager.
func NewFactory(cmd *cobra.Command) (*client.Factory, error) {
	ctx := cmd.Context()
	f, err := GetConfig(cmd).NewFactory(nil)
	if err != nil {
		return nil, err
	}
	GetCleanupManager(ctx).RegisterCallback(f.Close)
	if err := f.Start(ctx); err != nil {
		return nil, err
	}
	return f, nil
}
