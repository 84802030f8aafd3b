package uringsocket

import (
	"context"

	"github.com/DitchOoM/socket-sub001/socket"
)

// ServerSocket allocates a listening socket per §6's ServerSocket.bind.
// TLS termination on the server side is an explicit Non-goal; this
// yields plain Byte Sockets only.
type ServerSocket struct {
	ln *socket.Listener
}

// AllocateServerSocket mirrors ServerSocket.allocate(zone?).
func AllocateServerSocket() *ServerSocket {
	return &ServerSocket{}
}

// Bind opens a listening socket on port (0 for an OS-assigned port) and
// host (empty for the wildcard address) with the given backlog.
func (s *ServerSocket) Bind(port int, host string, backlog int) (*Sequence, error) {
	ln, err := socket.Listen(port, host, backlog)
	if err != nil {
		return nil, err
	}
	s.ln = ln
	return &Sequence{ln: ln}, nil
}

// Sequence is the lazy, finite-until-closed sequence of accepted client
// handles §6 describes bind() as returning. Not restartable; intended
// for single-subscriber consumption.
type Sequence struct {
	ln *socket.Listener
}

// Next blocks for the next accepted connection, or returns a Closed
// error once the listener has been closed.
func (seq *Sequence) Next(ctx context.Context) (Conn, error) {
	return seq.ln.Accept(ctx)
}

// Port returns the bound port, useful when 0 was requested.
func (seq *Sequence) Port() int { return seq.ln.Port() }

// Close stops the listener; outstanding Next calls observe Cancelled or
// Shutdown.
func (seq *Sequence) Close() error { return seq.ln.Close() }
