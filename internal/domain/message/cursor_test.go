package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCursor(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		c, err := ParseCursor("  ")
		require.NoError(t, err)
		assert.True(t, c.IsZero())
	})

	t.Run("integer is an id", func(t *testing.T) {
		c, err := ParseCursor("123")
		require.NoError(t, err)
		require.NotNil(t, c.ID)
		assert.Nil(t, c.Time)
		assert.Equal(t, int64(123), *c.ID)
	})

	t.Run("four digit integer is still an id", func(t *testing.T) {
		c, err := ParseCursor("2024")
		require.NoError(t, err)
		require.NotNil(t, c.ID)
		assert.Equal(t, int64(2024), *c.ID)
	})

	t.Run("timestamp", func(t *testing.T) {
		c, err := ParseCursor("2024-03-01T10:00:00.250+02:00")
		require.NoError(t, err)
		require.NotNil(t, c.Time)
		assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 250_000_000, time.UTC), *c.Time)
	})

	t.Run("date only", func(t *testing.T) {
		c, err := ParseCursor("2024-03-01")
		require.NoError(t, err)
		require.NotNil(t, c.Time)
	})

	t.Run("non-positive id", func(t *testing.T) {
		_, err := ParseCursor("0")
		assert.Error(t, err)
		_, err = ParseCursor("-4")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseCursor("yesterday")
		assert.Error(t, err)
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit))
	assert.Equal(t, MaxLimit, ClampLimit(10_000))
}

func TestPosition_Before(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Position{CreatedAt: at, ID: 1}.Before(Position{CreatedAt: at, ID: 2}))
	assert.False(t, Position{CreatedAt: at, ID: 2}.Before(Position{CreatedAt: at, ID: 2}))
	assert.True(t, Position{CreatedAt: at, ID: 9}.Before(Position{CreatedAt: at.Add(time.Millisecond), ID: 1}))
}
