//go:build !linux

package blockdev

import "os"

// deviceSize falls back to os.Stat on non-Linux platforms, where there is
// no portable ioctl for the raw size of a block special file.
func deviceSize(f *os.File) (size uint64, isDevice bool, err error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	return uint64(fi.Size()), fi.Mode()&os.ModeDevice != 0, nil
}
