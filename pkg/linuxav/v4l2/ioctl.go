//go:build linux

package v4l2

import (
	"syscall"
	"time"
	"unsafe"
)

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func open(path string) (int, error) {
	return syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
}

func closeFD(fd int) error {
	return syscall.Close(fd)
}

func mmap(fd int, offset uint32, length uint32) ([]byte, error) {
	return syscall.Mmap(fd, int64(offset), int(length), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

func munmap(b []byte) error {
	return syscall.Munmap(b)
}

// waitReadable blocks in select(2) until fd is readable or the timeout
// expires. It reports false on timeout. select is not restarted after a
// signal, so EINTR resumes the wait with the remaining time.
func waitReadable(fd int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		var readFds syscall.FdSet
		fdSet(&readFds, fd)

		n, err := syscall.Select(fd+1, &readFds, nil, nil, makeTimeval(timeout))
		if err == syscall.EINTR {
			if timeout = time.Until(deadline); timeout <= 0 {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}
