package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "sess-1:user_prompt", Key("sess-1", "user_prompt"))
}

func TestCheckAndMark_FirstSeenIsNeverADuplicate(t *testing.T) {
	c := New(500 * time.Millisecond)
	now := time.Now()

	dup := c.CheckAndMark("sess-1:user_prompt", now)
	require.False(t, dup)
	assert.Equal(t, 1, c.Len())
}

func TestCheckAndMark_WithinWindowIsADuplicate(t *testing.T) {
	c := New(500 * time.Millisecond)
	now := time.Now()

	require.False(t, c.CheckAndMark("sess-1:user_prompt", now))
	dup := c.CheckAndMark("sess-1:user_prompt", now.Add(100*time.Millisecond))
	assert.True(t, dup)
}

func TestCheckAndMark_AfterWindowIsNotADuplicate(t *testing.T) {
	c := New(500 * time.Millisecond)
	now := time.Now()

	require.False(t, c.CheckAndMark("sess-1:user_prompt", now))
	dup := c.CheckAndMark("sess-1:user_prompt", now.Add(600*time.Millisecond))
	assert.False(t, dup)
}

func TestCheckAndMark_DifferentKeysDontCollide(t *testing.T) {
	c := New(500 * time.Millisecond)
	now := time.Now()

	require.False(t, c.CheckAndMark(Key("sess-1", "stop"), now))
	require.False(t, c.CheckAndMark(Key("sess-2", "stop"), now))
	assert.Equal(t, 2, c.Len())
}

func TestSweep_DropsOnlyStaleEntries(t *testing.T) {
	c := New(500 * time.Millisecond)
	base := time.Now()

	c.CheckAndMark("old", base)
	c.CheckAndMark("fresh", base.Add(50*time.Second))

	c.Sweep(30*time.Second, base.Add(60*time.Second))

	assert.Equal(t, 1, c.Len())
}
