package socket

import (
	"context"
	"syscall"
	"time"

	"github.com/DitchOoM/socket-sub001/config"
	"github.com/DitchOoM/socket-sub001/internal/uring"
	"github.com/DitchOoM/socket-sub001/sockerr"
)

// Socket is a client, accepted, or listener-spawned TCP byte transport.
// Concurrent reads are serialized against each other by readBusy, and
// likewise writes by writeBusy; a read and a write may run concurrently.
type Socket struct {
	mgr  *uring.Manager
	fd   int
	role Role

	state       atomicState
	recvBufSize int

	readBusy  chan struct{}
	writeBusy chan struct{}

	onClose func()
}

func newSocket(mgr *uring.Manager, fd int, role Role, recvBufSize int) *Socket {
	s := &Socket{
		mgr:         mgr,
		fd:          fd,
		role:        role,
		recvBufSize: recvBufSize,
		readBusy:    make(chan struct{}, 1),
		writeBusy:   make(chan struct{}, 1),
	}
	s.readBusy <- struct{}{}
	s.writeBusy <- struct{}{}
	s.state.store(StateEstablished)
	return s
}

// queriedRecvBufSize reads SO_RCVBUF unless overridden by config.
func queriedRecvBufSize(fd int) int {
	if override := config.Current().ReadBufferSize; override > 0 {
		return override
	}
	n, err := syscall.GetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF)
	if err != nil || n <= 0 {
		return 64 * 1024
	}
	return n
}

func acquire(ctx context.Context, busy chan struct{}) error {
	select {
	case <-busy:
		return nil
	case <-ctx.Done():
		return sockerr.New(sockerr.Cancelled, "busy token wait cancelled")
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Read performs a single suspension-based recv. A zero kernel result
// (peer end-of-stream) is reported as Closed; no ENODATA-based
// distinction between graceful and abnormal close is attempted. A kernel
// error is mapped by sockerr.FromErrno, so a peer reset (ECONNRESET)
// surfaces as Reset and EPIPE/ENOTCONN/EBADF as Closed.
func (s *Socket) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if s.state.load() == StateClosed {
		return nil, sockerr.New(sockerr.Closed, "socket closed")
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := acquire(ctx, s.readBusy); err != nil {
		return nil, err
	}
	defer func() { s.readBusy <- struct{}{} }()

	size := s.recvBufSize
	if override := config.Current().ReadBufferSize; override > 0 {
		size = override
	}
	buf := make([]byte, size)
	n, err := s.mgr.Submit(ctx, uring.Request{Kind: uring.KindRead, FD: s.fd, Buf: buf})
	if err != nil {
		s.fail(err)
		return nil, err
	}
	if n <= 0 {
		s.fail(sockerr.New(sockerr.Closed, "peer closed"))
		return nil, sockerr.New(sockerr.Closed, "peer closed")
	}
	return buf[:n], nil
}

// Write sends the full buffer through suspension-based write ops,
// looping until every byte is accepted by the kernel (io_uring's write
// op, like POSIX write, may accept fewer bytes than requested).
func (s *Socket) Write(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if s.state.load() == StateClosed {
		return 0, sockerr.New(sockerr.Closed, "socket closed")
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := acquire(ctx, s.writeBusy); err != nil {
		return 0, err
	}
	defer func() { s.writeBusy <- struct{}{} }()

	total := 0
	for total < len(buf) {
		n, err := s.mgr.Submit(ctx, uring.Request{Kind: uring.KindWrite, FD: s.fd, Buf: buf[total:]})
		if err != nil {
			s.fail(err)
			return total, err
		}
		if n < 0 {
			s.fail(sockerr.New(sockerr.Closed, "peer closed"))
			return total, sockerr.New(sockerr.Closed, "peer closed")
		}
		if n == 0 {
			s.fail(sockerr.New(sockerr.Closed, "peer closed"))
			return total, sockerr.New(sockerr.Closed, "peer closed")
		}
		total += int(n)
	}
	return total, nil
}

// Close submits a Close op and waits for it to be observed. Idempotent:
// later calls see the already-Closed state and return immediately.
func (s *Socket) Close() error {
	if !s.state.closeToClosed() {
		return nil
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.closeFD()
	return nil
}

// closeFD submits a best-effort Close op for the underlying fd. Shared by
// Close and fail so every path that transitions the socket to Closed also
// releases the kernel fd, matching the teacher's tcp_conn.go shutdown,
// which drives prepareClose unconditionally on every error path too.
func (s *Socket) closeFD() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.mgr.Submit(ctx, uring.Request{Kind: uring.KindClose, FD: s.fd})
}

// fail transitions the socket to Closed and releases the underlying fd;
// called from Read/Write error paths, which observe the fd's terminal
// state but, unlike an explicit Close, haven't yet submitted a Close op
// for it themselves.
func (s *Socket) fail(_ error) {
	if !s.state.closeToClosed() {
		return
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.closeFD()
}

func (s *Socket) IsOpen() bool { return s.state.load() != StateClosed }

func (s *Socket) LocalPort() (int, error) {
	p, err := localPort(s.fd)
	if err != nil {
		return 0, sockerr.Wrap(sockerr.Unknown, "local port", err)
	}
	return p, nil
}

func (s *Socket) RemotePort() (int, error) {
	p, err := remotePort(s.fd)
	if err != nil {
		return 0, sockerr.Wrap(sockerr.Unknown, "remote port", err)
	}
	return p, nil
}
