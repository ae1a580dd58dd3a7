// Package fragstore implements the fragment allocator and inode store —
// component 5 of the storage engine. A fixed-size fragment table (loaded
// from a run of blocks reserved right after the superblock) maps inode ids
// to the block ranges that hold their data; inodes are lazily materialized
// views over the fragments that belong to them.
package fragstore

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/cache"
)

// RootID is the fixed inode id of the root directory.
const RootID int32 = 0

// Store owns the fragment table and the set of open inodes backed by it.
type Store struct {
	c          *cache.Cache
	blockSize  uint32
	tableStart uint64 // first block of the fragment table
	nBlocks    uint32 // number of blocks the table occupies

	tableMutex sync.Mutex
	fragments  []FragmentDescriptor
	byOffset   []int // indices into fragments, sorted by StartBlock ascending (free/empty last)
	byID       []int // indices into fragments, sorted by OwnerID ascending (free last)

	inodesMutex sync.Mutex
	inodes      map[int32]*Inode
}

// entriesPerBlock is how many 16-byte descriptors fit in one device block.
func entriesPerBlock(blockSize uint32) int {
	return int(blockSize) / descriptorSize
}

// Load reads an existing fragment table starting at tableStart and
// occupying nBlocks blocks.
func Load(c *cache.Cache, tableStart uint64, nBlocks uint32) (*Store, error) {
	s := &Store{
		c:          c,
		blockSize:  c.BlockSize(),
		tableStart: tableStart,
		nBlocks:    nBlocks,
		inodes:     make(map[int32]*Inode),
	}
	nEntries := entriesPerBlock(s.blockSize) * int(nBlocks)
	s.fragments = make([]FragmentDescriptor, nEntries)

	perBlock := entriesPerBlock(s.blockSize)
	for b := uint32(0); b < nBlocks; b++ {
		br, err := s.c.ReadBorrow(tableStart + uint64(b))
		if err != nil {
			return nil, err
		}
		buf := br.Bytes()
		for i := 0; i < perBlock; i++ {
			s.fragments[int(b)*perBlock+i] = decodeFragment(buf[i*descriptorSize : (i+1)*descriptorSize])
		}
		if err := br.Release(); err != nil {
			return nil, err
		}
	}
	s.resortAll()
	return s, nil
}

// Create initializes a brand new fragment table: slot 0 reserved for the
// superblock (blocks 0-1), slot 1 reserved for the table itself, and the
// rest left free.
func Create(c *cache.Cache, tableStart uint64, nBlocks uint32, superblockBlocks uint32) (*Store, error) {
	s := &Store{
		c:          c,
		blockSize:  c.BlockSize(),
		tableStart: tableStart,
		nBlocks:    nBlocks,
		inodes:     make(map[int32]*Inode),
	}
	nEntries := entriesPerBlock(s.blockSize) * int(nBlocks)
	s.fragments = make([]FragmentDescriptor, nEntries)
	for i := range s.fragments {
		s.fragments[i] = FragmentDescriptor{OwnerID: FreeID}
	}
	s.fragments[0] = FragmentDescriptor{OwnerID: SuperID, StartBlock: 0, ByteSize: s.blockSize * superblockBlocks}
	s.fragments[1] = FragmentDescriptor{OwnerID: TableID, StartBlock: tableStart, ByteSize: s.blockSize * nBlocks}

	s.resortAll()
	for i := range s.fragments {
		if err := s.storeFragmentLocked(i); err != nil {
			return nil, err
		}
	}
	s.c.Sync()
	return s, nil
}

func (s *Store) resortAll() {
	s.byOffset = make([]int, len(s.fragments))
	s.byID = make([]int, len(s.fragments))
	for i := range s.fragments {
		s.byOffset[i] = i
		s.byID[i] = i
	}
	s.sortOffsets()
	s.sortIDs()
}

// sortOffsets re-sorts byOffset by StartBlock, pushing free/empty slots to
// the end. Must be called with tableMutex held.
func (s *Store) sortOffsets() {
	sort.Slice(s.byOffset, func(a, b int) bool {
		ia, ib := s.byOffset[a], s.byOffset[b]
		return s.offsetSortKey(ia) < s.offsetSortKey(ib)
	})
}

func (s *Store) offsetSortKey(idx int) uint64 {
	d := s.fragments[idx]
	if d.free() {
		return ^uint64(0)
	}
	return d.StartBlock
}

// sortIDs re-sorts byID by OwnerID, pushing free slots to the end. Must be
// called with tableMutex held.
func (s *Store) sortIDs() {
	sort.Slice(s.byID, func(a, b int) bool {
		ia, ib := s.byID[a], s.byID[b]
		return s.idSortKey(ia) < s.idSortKey(ib)
	})
}

func (s *Store) idSortKey(idx int) int64 {
	d := s.fragments[idx]
	if d.OwnerID == FreeID {
		return 1<<62 + int64(idx)
	}
	return int64(d.OwnerID)
}

// storeFragmentLocked persists fragments[idx] to its block in the table.
// Must be called with tableMutex held.
func (s *Store) storeFragmentLocked(idx int) error {
	perBlock := entriesPerBlock(s.blockSize)
	block := s.tableStart + uint64(idx/perBlock)
	offsetInBlock := (idx % perBlock) * descriptorSize

	bw, err := s.c.WriteBorrow(block)
	if err != nil {
		return err
	}
	encodeFragment(s.fragments[idx], bw.Bytes()[offsetInBlock:offsetInBlock+descriptorSize])
	return bw.Release()
}

// ReserveID allocates a fresh fragment slot for a brand new inode, writes
// a zero-length fragment for it, and returns the new inode id. Ids are
// never reused: this always returns one past the current maximum owner id
// seen in the table, even across deletes.
func (s *Store) ReserveID() (int32, error) {
	s.tableMutex.Lock()
	defer s.tableMutex.Unlock()

	var maxID int32 = -1
	for _, d := range s.fragments {
		if d.OwnerID > maxID {
			maxID = d.OwnerID
		}
	}
	id := maxID + 1

	for i, d := range s.fragments {
		if d.OwnerID != FreeID {
			continue
		}
		s.fragments[i] = FragmentDescriptor{OwnerID: id}
		if err := s.storeFragmentLocked(i); err != nil {
			return 0, err
		}
		s.sortOffsets()
		s.sortIDs()
		return id, nil
	}
	return 0, errs.New(errs.NoSpace, "fragment table has no free descriptor slots")
}

// findGap implements the anti-fragmentation heuristic: walk the
// offset-sorted fragments and return the first hole larger than 1 MiB or a
// quarter of the requested size, else place the new allocation right after
// the last occupied fragment. Must be called with tableMutex held.
func (s *Store) findGap(maxSize int64) (startBlock uint64, byteSize uint32) {
	const antiFragThreshold = 0x100000

	for i := 0; i+1 < len(s.byOffset); i++ {
		idx1 := s.byOffset[i]
		idx2 := s.byOffset[i+1]
		d1 := s.fragments[idx1]
		d2 := s.fragments[idx2]
		if d2.free() {
			break
		}
		nextOfs := d1.nextFreeBlock(s.blockSize)
		hole := int64(d2.StartBlock-nextOfs) * int64(s.blockSize)
		if hole > antiFragThreshold || hole > maxSize/4 {
			return nextOfs, uint32(hole)
		}
	}

	last := s.fragments[s.byOffset[len(s.byOffset)-1]]
	for i := len(s.byOffset) - 1; i >= 0; i-- {
		d := s.fragments[s.byOffset[i]]
		if !d.free() {
			last = d
			break
		}
	}
	return last.nextFreeBlock(s.blockSize), maxFragmentBytes
}

// reserveFragmentFor finds a free descriptor slot and a place in the
// container for a new run belonging to ownerID, up to maxSize bytes, and
// returns the slot index plus the descriptor it was given (not yet
// persisted by the caller). Must be called with tableMutex held.
func (s *Store) reserveFragmentFor(ownerID int32, afterIdx int, maxSize int64) (slotIdx int, d FragmentDescriptor, err error) {
	slotIdx = -1
	for i := afterIdx + 1; i < len(s.fragments); i++ {
		if s.fragments[i].OwnerID == FreeID {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		return -1, FragmentDescriptor{}, errs.New(errs.NoSpace, "fragment table has no free descriptor slots")
	}

	startBlock, size := s.findGap(maxSize)
	if int64(size) > maxSize {
		size = uint32(maxSize)
	}
	return slotIdx, FragmentDescriptor{OwnerID: ownerID, StartBlock: startBlock, ByteSize: size}, nil
}

// Check verifies the no-overlap invariant two independent ways: an
// offset-sorted walk (as the original format does) and a bitset over the
// block range that rejects any block claimed twice.
func (s *Store) Check() error {
	s.tableMutex.Lock()
	defer s.tableMutex.Unlock()

	for i := 0; i+1 < len(s.byOffset); i++ {
		d1 := s.fragments[s.byOffset[i]]
		d2 := s.fragments[s.byOffset[i+1]]
		if d2.free() {
			break
		}
		nextOfs := d1.nextFreeBlock(s.blockSize)
		if d2.StartBlock < nextOfs {
			return errs.New(errs.InvariantViolation, "fragment overlap detected in offset-sorted walk")
		}
	}

	bs := bitset.New(0)
	for _, d := range s.fragments {
		if d.free() {
			continue
		}
		nBlocks := (d.ByteSize-1)/s.blockSize + 1
		for b := uint64(0); b < uint64(nBlocks); b++ {
			block := d.StartBlock + b
			if bs.Test(uint(block)) {
				return errs.New(errs.InvariantViolation, "fragment overlap detected in block bitmap")
			}
			bs.Set(uint(block))
		}
	}
	return nil
}

// FreeBlocks reports the number of free blocks and the number of live
// inodes, for StatFS.
func (s *Store) FreeBlocks() (free uint64, liveInodes uint64) {
	s.tableMutex.Lock()
	defer s.tableMutex.Unlock()

	seen := make(map[int32]bool)
	for _, d := range s.fragments {
		if d.OwnerID == FreeID {
			free++
			continue
		}
		if d.OwnerID >= 0 {
			seen[d.OwnerID] = true
		}
	}
	return free, uint64(len(seen))
}
