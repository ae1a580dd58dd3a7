package fragstore

import "encoding/binary"

// Sentinel owner ids. FreeID marks an unused descriptor slot; SuperID and
// TableID mark the two fixed regions (the superblock and the fragment
// table itself) so Check's overlap pass also covers them.
const (
	FreeID  int32 = -1
	SuperID int32 = -2
	TableID int32 = -3
)

// descriptorSize is the fixed on-disk size of one FragmentDescriptor:
// 4-byte owner id + 8-byte start block + 4-byte byte size.
const descriptorSize = 16

// maxFragmentBytes is the ceiling on a single fragment's ByteSize. A merge
// that would cross it is split into two descriptors instead of aborting
// the allocation (see DESIGN.md, 4 GiB ceiling decision).
const maxFragmentBytes = 0xFFFFFFFF

// FragmentDescriptor is one 16-byte slot in the fragment table: a run of
// blocks belonging to OwnerID (a regular inode id, or one of the sentinel
// ids above), starting at StartBlock, holding ByteSize live bytes.
type FragmentDescriptor struct {
	OwnerID    int32
	StartBlock uint64
	ByteSize   uint32
}

// free reports whether this slot holds no live allocation — per spec, that
// test must be ByteSize==0 || OwnerID==FreeID, never StartBlock==0 (block 0
// is a legitimate start block for the first allocation ever made).
func (d FragmentDescriptor) free() bool {
	return d.ByteSize == 0 || d.OwnerID == FreeID
}

// nextFreeBlock returns the block index immediately after this fragment's
// last occupied block, given the device's block size.
func (d FragmentDescriptor) nextFreeBlock(blockSize uint32) uint64 {
	if d.ByteSize == 0 {
		return d.StartBlock
	}
	return d.StartBlock + uint64((d.ByteSize-1)/blockSize) + 1
}

func encodeFragment(d FragmentDescriptor, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.OwnerID))
	binary.LittleEndian.PutUint64(buf[4:12], d.StartBlock)
	binary.LittleEndian.PutUint32(buf[12:16], d.ByteSize)
}

func decodeFragment(buf []byte) FragmentDescriptor {
	return FragmentDescriptor{
		OwnerID:    int32(binary.LittleEndian.Uint32(buf[0:4])),
		StartBlock: binary.LittleEndian.Uint64(buf[4:12]),
		ByteSize:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}
