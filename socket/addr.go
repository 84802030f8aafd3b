package socket

import (
	"context"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/DitchOoM/socket-sub001/sockerr"
)

// addrPtr returns a uintptr to buf's backing array for handing to the
// ring manager's Connect op; the caller is responsible for pinning buf
// for the lifetime of the submission.
func addrPtr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

// resolveHost turns an optional host (empty means localhost) plus port
// into a syscall.Sockaddr and the socket domain to create, distinguishing
// name-resolution failure (UnknownHost) from everything downstream.
//
// Adapted from the teacher's ParseIPPort, which only accepted literal
// IPs; this adds the DNS lookup §4.B requires ("host null => localhost").
func resolveHost(ctx context.Context, host string, port int) (syscall.Sockaddr, int, error) {
	if host == "" {
		host = "localhost"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil || len(ips) == 0 {
			return nil, 0, sockerr.Wrap(sockerr.UnknownHost, host, err)
		}
		ip = ips[0].IP
	}
	if ip4 := ip.To4(); ip4 != nil {
		return &syscall.SockaddrInet4{Port: port, Addr: [4]byte(ip4)}, syscall.AF_INET, nil
	}
	var addr [16]byte
	copy(addr[:], ip.To16())
	return &syscall.SockaddrInet6{Port: port, Addr: addr}, syscall.AF_INET6, nil
}

// listenSocket creates, binds and listens a TCP socket, returning its fd
// and the bound port (resolved from the kernel when port is 0).
//
// Grounded directly on the teacher's aio.listen helper: SO_REUSEADDR +
// SO_REUSEPORT, then Bind/Listen with the configured backlog.
func listenSocket(sa syscall.Sockaddr, domain, backlog int) (int, int, error) {
	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, sockerr.Wrap(sockerr.Configuration, "socket", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return 0, 0, sockerr.Wrap(sockerr.Configuration, "reuseaddr", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		syscall.Close(fd)
		return 0, 0, sockerr.Wrap(sockerr.Configuration, "reuseport", err)
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return 0, 0, sockerr.Wrap(sockerr.Configuration, "bind", err)
	}
	port := portOf(sa)
	if port == 0 {
		if sn, err := syscall.Getsockname(fd); err == nil {
			port = portOf(sn)
		}
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return 0, 0, sockerr.Wrap(sockerr.Configuration, "listen", err)
	}
	return fd, port, nil
}

func portOf(sa syscall.Sockaddr) int {
	switch v := sa.(type) {
	case *syscall.SockaddrInet4:
		return v.Port
	case *syscall.SockaddrInet6:
		return v.Port
	default:
		return 0
	}
}

func localPort(fd int) (int, error) {
	sa, err := syscall.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	return portOf(sa), nil
}

func remotePort(fd int) (int, error) {
	sa, err := syscall.Getpeername(fd)
	if err != nil {
		return 0, err
	}
	return portOf(sa), nil
}

// encodeSockaddr renders sa into the raw wire form io_uring's Connect/
// Accept ops expect, returning a byte slice the caller must keep alive
// (pinned) until the operation completes. Mirrors what the kernel's
// struct sockaddr_in/sockaddr_in6 look like on the wire; net.Addr's own
// encoder is unexported so this is hand-rolled, same as Go's internal
// syscall glue does for the non-io_uring path.
func encodeSockaddr(sa syscall.Sockaddr) ([]byte, error) {
	switch v := sa.(type) {
	case *syscall.SockaddrInet4:
		buf := make([]byte, 16)
		buf[0] = syscall.AF_INET
		buf[1] = 0
		buf[2] = byte(v.Port >> 8)
		buf[3] = byte(v.Port)
		copy(buf[4:8], v.Addr[:])
		return buf, nil
	case *syscall.SockaddrInet6:
		buf := make([]byte, 28)
		buf[0] = syscall.AF_INET6
		buf[1] = 0
		buf[2] = byte(v.Port >> 8)
		buf[3] = byte(v.Port)
		copy(buf[8:24], v.Addr[:])
		return buf, nil
	default:
		return nil, sockerr.New(sockerr.Configuration, "unsupported sockaddr")
	}
}
