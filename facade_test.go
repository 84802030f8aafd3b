package uringsocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DitchOoM/socket-sub001/config"
)

// TestManyClients exercises the "many clients" scenario from §8: N
// clients concurrently connect and exchange a unique tag each.
func TestManyClients(t *testing.T) {
	config.Reset()
	defer CleanupRing()

	server := AllocateServerSocket()
	seq, err := server.Bind(0, "127.0.0.1", 128)
	require.NoError(t, err)
	defer seq.Close()

	const clients = 64
	ctx := context.Background()

	go func() {
		for i := 0; i < clients; i++ {
			conn, err := seq.Next(ctx)
			if err != nil {
				return
			}
			go func(c Conn) {
				defer c.Close()
				buf, err := c.Read(ctx, 2*time.Second)
				if err != nil {
					return
				}
				_, _ = c.Write(ctx, buf, 2*time.Second)
			}(conn)
		}
	}()

	client := AllocateClientSocket(false)
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			tag := make([]byte, 12)
			for j := range tag {
				tag[j] = byte('a' + (i+j)%26)
			}
			err := client.ConnectFunc(ctx, seq.Port(), "127.0.0.1", 2*time.Second, func(conn Conn) error {
				if _, err := conn.Write(ctx, tag, 2*time.Second); err != nil {
					return err
				}
				got, err := conn.Read(ctx, 2*time.Second)
				if err != nil {
					return err
				}
				require.Equal(t, tag, got)
				return nil
			})
			errs <- err
		}(i)
	}

	for i := 0; i < clients; i++ {
		require.NoError(t, <-errs)
	}
}
