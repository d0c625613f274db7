package sbits

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

var ErrWriteByOther = errors.New("sbits: files opened with write mode by another process")

// flock acquires an exclusive advisory lock on a file descriptor.
func flock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return nil
	} else if err.(syscall.Errno) == syscall.EWOULDBLOCK || err.(syscall.Errno) == syscall.EAGAIN { // linux & unix
		return ErrWriteByOther
	} else {
		return errors.Wrap(err, "flock failed: unknown error")
	}
}

// funlock releases an advisory lock on a file descriptor.
func funlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
