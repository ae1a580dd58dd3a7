// Package blockdev implements the raw block device contract — component 1
// of the CoverFS storage engine. A Device is a fixed-size, block-addressed,
// synchronous and durable-on-return random-access store. The core assumes
// exactly one accessor at a time; multiplexing across goroutines is the
// cache layer's job, not this one's.
package blockdev

import "fmt"

// Device is the contract every raw block device backend satisfies.
type Device interface {
	// ReadAt reads count consecutive blocks starting at blockIndex into out.
	// len(out) must be exactly count*BlockSize().
	ReadAt(blockIndex uint64, count int, out []byte) error
	// WriteAt writes count consecutive blocks starting at blockIndex from in.
	// len(in) must be exactly count*BlockSize().
	WriteAt(blockIndex uint64, count int, in []byte) error
	// BlockSize returns the fixed block size in bytes, B >= 1024.
	BlockSize() uint32
	// TotalBlocks returns the number of addressable blocks, N.
	TotalBlocks() uint64
}

// ErrOutOfRange is returned when an operation would read or write beyond
// the device's addressable range.
type ErrOutOfRange struct {
	BlockIndex uint64
	Count      int
	Total      uint64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("blockdev: range [%d, %d) out of bounds for device of %d blocks", e.BlockIndex, e.BlockIndex+uint64(e.Count), e.Total)
}

func checkRange(blockIndex uint64, count int, total uint64) error {
	if count < 0 {
		return fmt.Errorf("blockdev: negative count %d", count)
	}
	if blockIndex+uint64(count) > total {
		return &ErrOutOfRange{BlockIndex: blockIndex, Count: count, Total: total}
	}
	return nil
}
