package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPICache_SetGet(t *testing.T) {
	c := New(time.Minute, 5*time.Minute)

	t.Run("保存した値がそのまま取り出せる", func(t *testing.T) {
		c.Set("analysis", "frame-001", "value-a")

		got, ok := c.Get("analysis", "frame-001")
		require.True(t, ok)
		assert.Equal(t, "value-a", got)
	})

	t.Run("存在しないキーは ok=false を返す", func(t *testing.T) {
		_, ok := c.Get("analysis", "ghost")
		assert.False(t, ok)
	})

	t.Run("TTL経過後は取得できない", func(t *testing.T) {
		c.SetWithTTL("analysis", "ephemeral", "soon-gone", time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		_, ok := c.Get("analysis", "ephemeral")
		assert.False(t, ok)
	})
}

func TestAPICache_Clear(t *testing.T) {
	c := New(time.Minute, 5*time.Minute)
	c.Set("colors", "frame-001", "palette")
	c.Set("colors", "frame-002", "palette2")
	c.Set("style", "frame-001", "anime")

	c.Clear("colors")

	t.Run("クリアした種別は消える", func(t *testing.T) {
		_, ok := c.Get("colors", "frame-001")
		assert.False(t, ok)
		_, ok = c.Get("colors", "frame-002")
		assert.False(t, ok)
	})

	t.Run("他の種別は残る", func(t *testing.T) {
		got, ok := c.Get("style", "frame-001")
		require.True(t, ok)
		assert.Equal(t, "anime", got)
	})
}

func TestAPICache_InvalidatePattern(t *testing.T) {
	c := New(time.Minute, 5*time.Minute)
	c.Set("generation", "sb-001/frame-001", 1)
	c.Set("generation", "sb-001/frame-002", 2)
	c.Set("generation", "sb-002/frame-001", 3)

	c.InvalidatePattern("generation", "sb-001/")

	_, ok := c.Get("generation", "sb-001/frame-001")
	assert.False(t, ok)
	_, ok = c.Get("generation", "sb-001/frame-002")
	assert.False(t, ok)

	got, ok := c.Get("generation", "sb-002/frame-001")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}
