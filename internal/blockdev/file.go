package blockdev

import (
	"fmt"
	"os"
)

// File is a Device backed by a local file or block device, opened with
// os.O_RDWR. Block size is fixed at open time; total size is probed once
// and cached.
type File struct {
	f           *os.File
	blockSize   uint32
	totalBlocks uint64
}

// OpenFile opens path for a container of the given block size. If path
// already exists and is smaller than blockSize*totalBlocks, it is grown
// (sparse) to exactly that size; if it is a real block device, its native
// size is used instead and totalBlocks is ignored. A totalBlocks of 0
// means "use the existing file's size", for reopening a container whose
// size was fixed at creation.
func OpenFile(path string, blockSize uint32, totalBlocks uint64) (*File, error) {
	if blockSize < 1024 {
		return nil, fmt.Errorf("blockdev: block size %d below minimum 1024", blockSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}

	fd := &File{f: f, blockSize: blockSize}
	size, isDevice, err := deviceSize(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	switch {
	case isDevice:
		fd.totalBlocks = size / uint64(blockSize)
	default:
		if totalBlocks == 0 {
			fd.totalBlocks = size / uint64(blockSize)
			break
		}
		want := int64(blockSize) * int64(totalBlocks)
		if size < uint64(want) {
			if err := f.Truncate(want); err != nil {
				f.Close()
				return nil, fmt.Errorf("blockdev: grow %s to %d bytes: %w", path, want, err)
			}
		}
		fd.totalBlocks = totalBlocks
	}
	return fd, nil
}

func (f *File) Close() error { return f.f.Close() }

func (f *File) BlockSize() uint32   { return f.blockSize }
func (f *File) TotalBlocks() uint64 { return f.totalBlocks }

func (f *File) ReadAt(blockIndex uint64, count int, out []byte) error {
	if err := checkRange(blockIndex, count, f.totalBlocks); err != nil {
		return err
	}
	off := int64(blockIndex) * int64(f.blockSize)
	n, err := f.f.ReadAt(out[:int(f.blockSize)*count], off)
	if err != nil {
		return fmt.Errorf("blockdev: read at block %d: %w", blockIndex, err)
	}
	if n != int(f.blockSize)*count {
		return fmt.Errorf("blockdev: short read at block %d: got %d of %d bytes", blockIndex, n, int(f.blockSize)*count)
	}
	return nil
}

func (f *File) WriteAt(blockIndex uint64, count int, in []byte) error {
	if err := checkRange(blockIndex, count, f.totalBlocks); err != nil {
		return err
	}
	off := int64(blockIndex) * int64(f.blockSize)
	n, err := f.f.WriteAt(in[:int(f.blockSize)*count], off)
	if err != nil {
		return fmt.Errorf("blockdev: write at block %d: %w", blockIndex, err)
	}
	if n != int(f.blockSize)*count {
		return fmt.Errorf("blockdev: short write at block %d: wrote %d of %d bytes", blockIndex, n, int(f.blockSize)*count)
	}
	return nil
}
