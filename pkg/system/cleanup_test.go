//go:build unit || !integration

package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/syncbench/tdk/pkg/logger"
)

type SystemCleanupSuite struct {
	suite.Suite
}

func TestSystemCleanupSuite(t *testing.T) {
	suite.Run(t, new(SystemCleanupSuite))
}

func (suite *SystemCleanupSuite) SetupTest() {
	logger.ConfigureTestLogging(suite.T())
}

func (suite *SystemCleanupSuite) TestCleanupManager() {
	clean := false

	cm := NewCleanupManager()
	cm.RegisterCallback(func() error {
		clean = true
		return nil
	})

	require.NoError(suite.T(), cm.Cleanup())
	require.True(suite.T(), clean, "cleanup handler failed to run registered functions")
}

func (suite *SystemCleanupSuite) TestCleanupCollectsErrors() {
	closeErr := errors.New("router close failed")

	cm := NewCleanupManager()
	cm.RegisterCallback(func() error { return closeErr })
	cm.RegisterCallback(func() error { return context.Canceled })
	cm.RegisterCallback(func() error { return nil })

	err := cm.Cleanup()
	require.ErrorIs(suite.T(), err, closeErr)
	require.NotErrorIs(suite.T(), err, context.Canceled)

	require.NoError(suite.T(), cm.Cleanup(), "second cleanup is a no-op")
}
