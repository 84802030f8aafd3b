// Package config holds the process-wide tunables consulted by the ring
// manager, byte socket and TLS stream layers: queue sizing and retry
// policy, receive buffer overrides, and CA trust source selection.
package config

import (
	"sync"
	"time"
)

// Config is the process-wide mutable tunable record described in the
// design's Resource & Config Surface. Mutating it after the ring has
// started only takes effect once the ring is torn down and recreated.
type Config struct {
	// QueueDepth sizes the submission/completion ring, clamped to [8, 65536].
	QueueDepth uint32
	// QueueRetries bounds SQE-acquisition retries before QueueFull, [0, 1000].
	QueueRetries int
	// RetryBaseDelay is the linear back-off step between retries.
	RetryBaseDelay time.Duration
	// ReadBufferSize overrides the per-read allocation; zero means fall
	// back to the socket's cached SO_RCVBUF value.
	ReadBufferSize int
	// Insecure installs a trust-all TLS verifier instead of loading a CA
	// bundle. Never enable this outside of tests.
	Insecure bool
}

const (
	minQueueDepth = 8
	maxQueueDepth = 65536
	maxRetries    = 1000
)

// Default matches §4.D: depth 1024, retries 10, 1ms base delay, no read
// buffer override.
func Default() Config {
	return Config{
		QueueDepth:     1024,
		QueueRetries:   10,
		RetryBaseDelay: time.Millisecond,
	}
}

// Client is the {depth 256, retries 5, read buf 32 KiB} preset tuned for
// a handful of outbound connections.
func Client() Config {
	c := Default()
	c.QueueDepth = 256
	c.QueueRetries = 5
	c.ReadBufferSize = 32 * 1024
	return c
}

// Server is the {depth 4096, retries 20, read buf 128 KiB} preset tuned
// for many concurrent accepted connections.
func Server() Config {
	c := Default()
	c.QueueDepth = 4096
	c.QueueRetries = 20
	c.ReadBufferSize = 128 * 1024
	return c
}

// Clamp applies the documented bounds. Configure applies it to every
// update, and the ring manager applies it again when it adopts a Config
// at epoch start.
func (c Config) Clamp() Config {
	if c.QueueDepth < minQueueDepth {
		c.QueueDepth = minQueueDepth
	}
	if c.QueueDepth > maxQueueDepth {
		c.QueueDepth = maxQueueDepth
	}
	if c.QueueRetries < 0 {
		c.QueueRetries = 0
	}
	if c.QueueRetries > maxRetries {
		c.QueueRetries = maxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Millisecond
	}
	return c
}

// store is the process-wide current Config plus the registered ring
// cleanup hook. Reset and Configure never invoke cleanupFn: a change
// made after the ring has started takes effect only once Cleanup (or the
// ring manager's own Cleanup) starts a new epoch.
type store struct {
	mu        sync.Mutex
	current   Config
	cleanupFn func()
}

var global = &store{current: Default()}

// UpdateFunc mutates a copy of the current Config; Configure applies the
// result atomically.
type UpdateFunc func(*Config)

// Configure applies update to the current configuration and returns the
// resulting value. It does not itself tear down a running ring; callers
// that need the new values to take effect call IoRing's Cleanup (wired
// via RegisterCleanup) explicitly, exactly as the public API does.
func Configure(update UpdateFunc) Config {
	global.mu.Lock()
	defer global.mu.Unlock()
	cfg := global.current
	update(&cfg)
	global.current = cfg.Clamp()
	return global.current
}

// ConfigureForClient installs the Client preset wholesale.
func ConfigureForClient() Config {
	return Configure(func(c *Config) { *c = Client() })
}

// ConfigureForServer installs the Server preset wholesale.
func ConfigureForServer() Config {
	return Configure(func(c *Config) { *c = Server() })
}

// Reset restores defaults. Per the config-reset law, a subsequent
// Configure takes effect for the next ring epoch once cleanup() runs.
func Reset() Config {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.current = Default()
	return global.current
}

// Current returns the active configuration.
func Current() Config {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.current
}

// RegisterCleanup records the ring manager's cleanup hook so that a future
// extension point (e.g. a config-driven auto-cleanup) has somewhere to
// call into. The ring manager itself is the authority on its own
// lifecycle; this is merely bookkeeping for callers that only hold a
// config.Config and want to force a fresh epoch.
func RegisterCleanup(fn func()) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.cleanupFn = fn
}

// Cleanup invokes the registered ring cleanup hook, if any.
func Cleanup() {
	global.mu.Lock()
	fn := global.cleanupFn
	global.mu.Unlock()
	if fn != nil {
		fn()
	}
}
