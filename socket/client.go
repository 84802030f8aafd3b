package socket

import (
	"context"
	"runtime"
	"syscall"
	"time"

	"github.com/DitchOoM/socket-sub001/internal/uring"
	"github.com/DitchOoM/socket-sub001/sockerr"
)

// Connect opens a client Byte Socket to host:port within timeout. host
// empty resolves to localhost. On failure the created fd is closed
// before the error is returned, per §4.B.
func Connect(ctx context.Context, port int, host string, timeout time.Duration) (*Socket, error) {
	mgr, err := uring.Get()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	sa, domain, err := resolveHost(ctx, host, port)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, sockerr.Wrap(sockerr.Configuration, "socket", err)
	}

	addrBytes, err := encodeSockaddr(sa)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}

	var pinner runtime.Pinner
	pinner.Pin(&addrBytes[0])
	defer pinner.Unpin()

	req := uring.Request{
		Kind:    uring.KindConnect,
		FD:      fd,
		Addr:    addrPtr(addrBytes),
		AddrLen: uint64(len(addrBytes)),
	}
	if _, err := mgr.Submit(ctx, req); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	recvBufSize := queriedRecvBufSize(fd)
	sock := newSocket(mgr, fd, RoleClient, recvBufSize)
	return sock, nil
}
