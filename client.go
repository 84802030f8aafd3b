// Package uringsocket is the public facade over the Byte Socket and TLS
// Stream layers, matching §6's language-neutral external interface:
// ClientSocket/ServerSocket allocation, connect/bind, and the shared
// read/write/close/observer surface.
package uringsocket

import (
	"context"
	"time"

	"github.com/DitchOoM/socket-sub001/internal/uring"
	"github.com/DitchOoM/socket-sub001/tlsstream"

	"github.com/DitchOoM/socket-sub001/socket"
)

// Conn is the uniform byte-transport surface both plain and TLS sockets
// satisfy; the narrow interface §1 asks the core to expose so the
// out-of-scope convenience helpers (buffered reads, line framing,
// pools) can wrap it without further systems work.
type Conn interface {
	Read(ctx context.Context, timeout time.Duration) ([]byte, error)
	Write(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
	Close() error
	IsOpen() bool
	LocalPort() (int, error)
	RemotePort() (int, error)
}

// ClientSocket allocates client-side connections, optionally over TLS.
type ClientSocket struct {
	tls     bool
	tlsOpts tlsstream.Options
}

// AllocateClientSocket mirrors ClientSocket.allocate(tls, zone?); zone
// (NUMA/affinity placement) is an external-collaborator concern per §1
// and isn't modeled here.
func AllocateClientSocket(tlsEnabled bool, opts ...ClientOption) *ClientSocket {
	c := &ClientSocket{tls: tlsEnabled}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ClientOption configures a ClientSocket's TLS behavior.
type ClientOption func(*ClientSocket)

// WithInsecureTLS disables certificate verification. Never use outside
// tests.
func WithInsecureTLS() ClientOption {
	return func(c *ClientSocket) { c.tlsOpts.Insecure = true }
}

// WithALPN sets the TLS NextProtos preference list.
func WithALPN(protocols ...string) ClientOption {
	return func(c *ClientSocket) { c.tlsOpts.NextProtos = protocols }
}

// Connect opens a connection to host:port within timeout. host empty
// resolves to localhost.
func (c *ClientSocket) Connect(ctx context.Context, port int, host string, timeout time.Duration) (Conn, error) {
	if c.tls {
		return tlsstream.Open(ctx, port, host, timeout, c.tlsOpts)
	}
	return socket.Connect(ctx, port, host, timeout)
}

// ConnectFunc opens a connection, invokes body with it, and closes it
// on return, mirroring the connect(..., body) convenience form from §6.
func (c *ClientSocket) ConnectFunc(ctx context.Context, port int, host string, timeout time.Duration, body func(Conn) error) error {
	conn, err := c.Connect(ctx, port, host, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return body(conn)
}

// CleanupRing tears down the process-wide io_uring epoch, matching
// IoRing.cleanup() in §6.
func CleanupRing() error {
	return uring.Cleanup()
}
