//go:build linux

package blockdev

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceSize returns the addressable size of f and whether it is a block
// device. For a block device it asks the kernel directly via BLKGETSIZE64,
// since os.Stat reports zero size for block special files.
func deviceSize(f *os.File) (size uint64, isDevice bool, err error) {
	fi, statErr := f.Stat()
	if statErr != nil {
		return 0, false, statErr
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return uint64(fi.Size()), false, nil
	}
	var nbytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&nbytes)))
	if errno != 0 {
		return 0, true, errno
	}
	return nbytes, true, nil
}
