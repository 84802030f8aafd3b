package tlsstream

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/DitchOoM/socket-sub001/sockerr"
	"github.com/DitchOoM/socket-sub001/socket"
)

// netConnAdapter exposes a socket.Socket as a net.Conn so the stream can
// hand it to crypto/tls.Client/Server, which is the idiomatic Go way to
// get a full handshake/record engine over an arbitrary byte transport
// without hand-rolling one. It retains any bytes read from the socket
// but not yet consumed by the caller, the "ciphertext tail" concept from
// §9 applied at the transport-shim boundary; crypto/tls's own record
// layer handles the rest of the buffering internally.
type netConnAdapter struct {
	sock *socket.Socket
	tail []byte

	readDeadline  time.Time
	writeDeadline time.Time
}

func newConnAdapter(sock *socket.Socket) *netConnAdapter {
	return &netConnAdapter{sock: sock}
}

func (a *netConnAdapter) Read(p []byte) (int, error) {
	if len(a.tail) > 0 {
		n := copy(p, a.tail)
		a.tail = a.tail[n:]
		return n, nil
	}
	buf, err := a.sock.Read(context.Background(), a.readTimeout())
	if err != nil {
		return 0, translateErr(err)
	}
	n := copy(p, buf)
	if n < len(buf) {
		a.tail = append([]byte(nil), buf[n:]...)
	}
	return n, nil
}

func (a *netConnAdapter) Write(p []byte) (int, error) {
	n, err := a.sock.Write(context.Background(), p, a.writeTimeout())
	if err != nil {
		return n, translateErr(err)
	}
	return n, nil
}

func (a *netConnAdapter) Close() error {
	return a.sock.Close()
}

func (a *netConnAdapter) LocalAddr() net.Addr {
	port, _ := a.sock.LocalPort()
	return &net.TCPAddr{Port: port}
}

func (a *netConnAdapter) RemoteAddr() net.Addr {
	port, _ := a.sock.RemotePort()
	return &net.TCPAddr{Port: port}
}

func (a *netConnAdapter) SetDeadline(t time.Time) error {
	a.readDeadline = t
	a.writeDeadline = t
	return nil
}

func (a *netConnAdapter) SetReadDeadline(t time.Time) error {
	a.readDeadline = t
	return nil
}

func (a *netConnAdapter) SetWriteDeadline(t time.Time) error {
	a.writeDeadline = t
	return nil
}

func (a *netConnAdapter) readTimeout() time.Duration  { return timeoutUntil(a.readDeadline) }
func (a *netConnAdapter) writeTimeout() time.Duration { return timeoutUntil(a.writeDeadline) }

func timeoutUntil(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return 0
	}
	return time.Until(deadline)
}

// translateErr turns the taxonomy's Closed into io.EOF, which is what
// crypto/tls's record reader expects to see a graceful peer close as.
func translateErr(err error) error {
	if sockerr.OfKind(err, sockerr.Closed) {
		return io.EOF
	}
	return err
}
