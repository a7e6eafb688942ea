//go:build unit || !integration

package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	info, err := parse("v1.4.2", "abc123", "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "1", info.Major)
	assert.Equal(t, "4", info.Minor)
	assert.Equal(t, "abc123", info.GitCommit)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildDate)
}

func TestParseWithoutBuildDate(t *testing.T) {
	info, err := parse("v0.2.0", "", "")
	require.NoError(t, err)
	assert.True(t, info.BuildDate.IsZero())
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := parse("not-a-version", "", "")
	require.Error(t, err)

	_, err = parse("v1.0.0", "", "yesterday")
	require.Error(t, err)
}

func TestGetDefault(t *testing.T) {
	info, err := Get()
	require.NoError(t, err)
	assert.Equal(t, GITVERSION, info.GitVersion)
}
