//go:build linux && (amd64 || arm64)

package v4l2

import (
	"syscall"
	"time"
)

func makeTimeval(d time.Duration) *syscall.Timeval {
	tv := syscall.NsecToTimeval(d.Nanoseconds())
	return &tv
}

func fdSet(set *syscall.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
