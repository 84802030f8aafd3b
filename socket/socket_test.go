package socket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DitchOoM/socket-sub001/config"
	"github.com/DitchOoM/socket-sub001/internal/uring"
	"github.com/DitchOoM/socket-sub001/sockerr"
)

// TestEchoServer mirrors the teacher's TestTCPListener shape but drives
// the suspension-based API end to end: a listener accepts one
// connection, the client writes "hello", and the accepted socket reads
// it back.
func TestEchoServer(t *testing.T) {
	config.Reset()
	defer uring.Cleanup()

	ln, err := Listen(0, "127.0.0.1", 16)
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() {
		srv, err := ln.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		defer srv.Close()
		buf, err := srv.Read(ctx, 2*time.Second)
		if err != nil {
			errCh <- err
			return
		}
		_, err = srv.Write(ctx, buf, 2*time.Second)
		errCh <- err
	}()

	client, err := Connect(ctx, ln.Port(), "127.0.0.1", 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	n, err := client.Write(ctx, []byte("hello"), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	echoed, err := client.Read(ctx, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(echoed))

	require.NoError(t, <-errCh)
}

// TestAcceptedLocalPortMatchesListener checks the §8 invariant that
// every accepted socket's local_port equals the listener's bound port.
func TestAcceptedLocalPortMatchesListener(t *testing.T) {
	config.Reset()
	defer uring.Cleanup()

	ln, err := Listen(0, "127.0.0.1", 16)
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	srvCh := make(chan *Socket, 1)
	go func() {
		srv, err := ln.Accept(ctx)
		require.NoError(t, err)
		srvCh <- srv
	}()

	client, err := Connect(ctx, ln.Port(), "127.0.0.1", 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	srv := <-srvCh
	defer srv.Close()

	lp, err := srv.LocalPort()
	require.NoError(t, err)
	require.Equal(t, ln.Port(), lp)
}

// TestIdempotentClose checks the idempotent-close law: a second Close
// is a no-op and subsequent I/O observes Closed.
func TestIdempotentClose(t *testing.T) {
	config.Reset()
	defer uring.Cleanup()

	ln, err := Listen(0, "127.0.0.1", 16)
	require.NoError(t, err)
	defer ln.Close()

	ctx := context.Background()
	client, err := Connect(ctx, ln.Port(), "127.0.0.1", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	require.False(t, client.IsOpen())

	_, err = client.Read(ctx, time.Second)
	require.True(t, sockerr.OfKind(err, sockerr.Closed))
}
