//go:build unit || !integration

package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotNil(t *testing.T) {
	var nilPointer *int
	var nilMap map[string]int
	assert.Error(t, NotNil(nil, "nil"))
	assert.Error(t, NotNil(nilPointer, "nil pointer"))
	assert.Error(t, NotNil(nilMap, "nil map"))
	assert.NoError(t, NotNil(42, "value"))
	assert.NoError(t, NotNil(new(int), "pointer"))
}

func TestNotBlankAndNotEmpty(t *testing.T) {
	assert.EqualError(t, NotBlank("  ", "name %s blank", "x"), "name x blank")
	assert.NoError(t, NotBlank("a", "blank"))
	assert.Error(t, NotEmpty([]string{}, "empty"))
	assert.NoError(t, NotEmpty([]int{1}, "empty"))
}

func TestKeyNotInMap(t *testing.T) {
	m := map[string]int{"a": 1}
	assert.Error(t, KeyNotInMap("a", m, "dup"))
	assert.NoError(t, KeyNotInMap("b", m, "dup"))
}

func TestNumbers(t *testing.T) {
	assert.Error(t, IsGreaterThanZero(0, "zero"))
	assert.Error(t, IsGreaterThanZero(-time.Second, "negative"))
	assert.NoError(t, IsGreaterThanZero(1.5, "positive"))

	assert.Error(t, IsGreaterOrEqual(time.Second, 2*time.Second, "less"))
	assert.NoError(t, IsGreaterOrEqual(2*time.Second, 2*time.Second, "equal"))
}

func TestJoin(t *testing.T) {
	err := errors.Join(
		NotBlank("", "first"),
		IsGreaterThanZero(0, "second"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}
