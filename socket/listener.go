package socket

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/DitchOoM/socket-sub001/internal/uring"
	"github.com/DitchOoM/socket-sub001/sockerr"
)

// Listener is a bound server socket producing a lazy, finite-until-closed
// sequence of accepted Byte Sockets via repeated Accept calls. Not
// restartable; intended for single-subscriber consumption, matching the
// teacher's one-Upstream-per-connection model generalized to a pull
// rather than push interface.
type Listener struct {
	mgr  *uring.Manager
	fd   int
	port int

	mu           sync.Mutex
	closed       bool
	acceptCancel context.CancelFunc
}

// Listen binds and listens a TCP server socket on port (0 for an
// OS-assigned port) and host (empty for the wildcard address).
func Listen(port int, host string, backlog int) (*Listener, error) {
	mgr, err := uring.Get()
	if err != nil {
		return nil, err
	}
	sa, domain, err := resolveListenHost(host, port)
	if err != nil {
		return nil, err
	}
	fd, boundPort, err := listenSocket(sa, domain, backlog)
	if err != nil {
		return nil, err
	}
	return &Listener{mgr: mgr, fd: fd, port: boundPort}, nil
}

// resolveListenHost maps the empty host to the IPv6 wildcard address and
// passes any other host to resolveHost (literal IP, or a DNS lookup under
// context.Background).
func resolveListenHost(host string, port int) (syscall.Sockaddr, int, error) {
	if host == "" {
		return &syscall.SockaddrInet6{Port: port}, syscall.AF_INET6, nil
	}
	return resolveHost(context.Background(), host, port)
}

// Accept yields the next accepted Byte Socket. Its local_port always
// equals the listener's bound port, satisfying §8's accepted-socket
// invariant since both read the same underlying listening fd's bind.
func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, sockerr.New(sockerr.Closed, "listener closed")
	}
	l.mu.Unlock()

	acceptCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.acceptCancel = cancel
	l.mu.Unlock()
	defer func() {
		cancel()
		l.mu.Lock()
		l.acceptCancel = nil
		l.mu.Unlock()
	}()

	res, err := l.mgr.Submit(acceptCtx, uring.Request{Kind: uring.KindAccept, FD: l.fd})
	if err != nil {
		return nil, err
	}
	fd := int(res)
	recvBufSize := queriedRecvBufSize(fd)
	sock := newSocket(l.mgr, fd, RoleAccepted, recvBufSize)
	return sock, nil
}

// Close stops accepting. In-flight Accept calls observe Cancelled or
// Shutdown; the listening fd itself is closed synchronously so the
// kernel releases the bound port immediately. Idempotent.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.acceptCancel != nil {
		l.acceptCancel()
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = l.mgr.Submit(ctx, uring.Request{Kind: uring.KindClose, FD: l.fd})
	return nil
}

func (l *Listener) Port() int { return l.port }
