//go:build linux && arm

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
	set.Bits[fd/32] |= 1 << (uint(fd) % 32)
}
