package uring

import (
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// Kind enumerates the operation kinds the ring manager accepts, mirroring
// §3's Operation attributes: every outstanding token maps to exactly one
// kind of kernel request.
type Kind uint8

const (
	KindConnect Kind = iota
	KindAccept
	KindRead
	KindWrite
	KindClose
	KindCancel
	KindNop
)

// Request describes a single submission. Addr/AddrLen are only used by
// Connect; Buf is only used by Read/Write; TargetToken is only used by
// Cancel.
type Request struct {
	Kind        Kind
	FD          int
	Buf         []byte
	Addr        uintptr
	AddrLen     uint64
	TargetToken uint64
}

// prepare writes req into sqe and is the only place that touches the
// giouring SQE API, keeping the rest of the package free of liburing
// op-code knowledge.
func prepare(sqe *giouring.SubmissionQueueEntry, req Request, token uint64) {
	switch req.Kind {
	case KindConnect:
		sqe.PrepareConnect(req.FD, req.Addr, req.AddrLen)
	case KindAccept:
		sqe.PrepareAccept(req.FD, 0, 0, 0)
	case KindRead:
		sqe.PrepareRead(req.FD, uintptr(unsafe.Pointer(&req.Buf[0])), uint32(len(req.Buf)), 0)
	case KindWrite:
		sqe.PrepareWrite(req.FD, uintptr(unsafe.Pointer(&req.Buf[0])), uint32(len(req.Buf)), 0)
	case KindClose:
		sqe.PrepareClose(req.FD)
	case KindCancel:
		sqe.PrepareCancel64(req.TargetToken, 0)
	case KindNop:
		sqe.PrepareNop()
	}
	sqe.UserData = token
}
