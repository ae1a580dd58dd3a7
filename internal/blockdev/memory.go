package blockdev

import "fmt"

// Memory is an in-memory Device, used for tests and ephemeral volumes that
// never need to outlive the process.
type Memory struct {
	blockSize uint32
	buf       []byte
}

// NewMemory allocates a zeroed in-memory device of totalBlocks blocks of
// blockSize bytes each.
func NewMemory(blockSize uint32, totalBlocks uint64) (*Memory, error) {
	if blockSize < 1024 {
		return nil, fmt.Errorf("blockdev: block size %d below minimum 1024", blockSize)
	}
	return &Memory{
		blockSize: blockSize,
		buf:       make([]byte, uint64(blockSize)*totalBlocks),
	}, nil
}

func (m *Memory) BlockSize() uint32    { return m.blockSize }
func (m *Memory) TotalBlocks() uint64  { return uint64(len(m.buf)) / uint64(m.blockSize) }

func (m *Memory) ReadAt(blockIndex uint64, count int, out []byte) error {
	if err := checkRange(blockIndex, count, m.TotalBlocks()); err != nil {
		return err
	}
	off := blockIndex * uint64(m.blockSize)
	n := uint64(count) * uint64(m.blockSize)
	copy(out, m.buf[off:off+n])
	return nil
}

func (m *Memory) WriteAt(blockIndex uint64, count int, in []byte) error {
	if err := checkRange(blockIndex, count, m.TotalBlocks()); err != nil {
		return err
	}
	off := blockIndex * uint64(m.blockSize)
	n := uint64(count) * uint64(m.blockSize)
	copy(m.buf[off:off+n], in)
	return nil
}
