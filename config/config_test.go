package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPresets checks the §4.D preset values directly.
func TestPresets(t *testing.T) {
	d := Default()
	require.Equal(t, uint32(1024), d.QueueDepth)
	require.Equal(t, 10, d.QueueRetries)
	require.Equal(t, time.Millisecond, d.RetryBaseDelay)
	require.Equal(t, 0, d.ReadBufferSize)

	c := Client()
	require.Equal(t, uint32(256), c.QueueDepth)
	require.Equal(t, 5, c.QueueRetries)
	require.Equal(t, 32*1024, c.ReadBufferSize)

	s := Server()
	require.Equal(t, uint32(4096), s.QueueDepth)
	require.Equal(t, 20, s.QueueRetries)
	require.Equal(t, 128*1024, s.ReadBufferSize)
}

// TestClampBounds checks the documented [8, 65536] / [0, 1000] bounds.
func TestClampBounds(t *testing.T) {
	c := Config{QueueDepth: 1, QueueRetries: -5, RetryBaseDelay: 0}
	clamped := c.Clamp()
	require.Equal(t, uint32(minQueueDepth), clamped.QueueDepth)
	require.Equal(t, 0, clamped.QueueRetries)
	require.Equal(t, time.Millisecond, clamped.RetryBaseDelay)

	c = Config{QueueDepth: 1 << 20, QueueRetries: 5000}
	clamped = c.Clamp()
	require.Equal(t, uint32(maxQueueDepth), clamped.QueueDepth)
	require.Equal(t, maxRetries, clamped.QueueRetries)
}

// TestConfigResetLaw checks the §8 "Config reset" law:
// configure(x); reset(); configure(y) leaves Current() == y.
func TestConfigResetLaw(t *testing.T) {
	defer Reset()

	ConfigureForClient()
	require.Equal(t, Client(), Current())

	Reset()
	require.Equal(t, Default(), Current())

	ConfigureForServer()
	require.Equal(t, Server(), Current())
}

// TestConfigurePartialUpdate checks that Configure mutates a copy of the
// current value rather than replacing it wholesale.
func TestConfigurePartialUpdate(t *testing.T) {
	defer Reset()

	ConfigureForServer()
	got := Configure(func(c *Config) { c.ReadBufferSize = 4096 })
	require.Equal(t, uint32(4096), got.QueueDepth) // server preset's depth survives
	require.Equal(t, 4096, got.ReadBufferSize)
}

// TestRegisterCleanupInvokesHook checks that Cleanup calls the
// registered hook, the plumbing IoRing.cleanup() relies on.
func TestRegisterCleanupInvokesHook(t *testing.T) {
	defer RegisterCleanup(nil)

	called := false
	RegisterCleanup(func() { called = true })
	Cleanup()
	require.True(t, called)
}
