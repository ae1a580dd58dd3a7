package fragstore

import (
	"sync"

	"github.com/coverfs/coverfs/errs"
)

// Inode is a lazily materialized view over the fragment table: the list of
// slot indices owned by ID, kept in allocation order. It uses a plain
// sync.RWMutex rather than a recursive lock — Write takes the write lock
// once and calls writeLocked/truncateUpLocked directly instead of
// re-entering through the public, locking API (see DESIGN.md, recursive
// mutex redesign).
type Inode struct {
	store *Store

	ID   int32
	Dir  bool
	Name string

	// ParentID is nil for the root directory and set for everything else.
	// This replaces an "invalid inode" sentinel object with an explicit
	// optional value (see DESIGN.md).
	ParentID *uint32

	mu        sync.RWMutex
	fragments []int // indices into store.fragments, in allocation order
	size      int64
}

// OpenInode returns the Inode for id, materializing it from the fragment
// table on first access and caching it for subsequent callers.
func (s *Store) OpenInode(id int32) (*Inode, error) {
	s.inodesMutex.Lock()
	defer s.inodesMutex.Unlock()

	if n, ok := s.inodes[id]; ok {
		return n, nil
	}

	n := &Inode{store: s, ID: id, Dir: id == RootID}

	s.tableMutex.Lock()
	for i, d := range s.fragments {
		if d.OwnerID != id {
			continue
		}
		n.size += int64(d.ByteSize)
		n.fragments = append(n.fragments, i)
	}
	s.tableMutex.Unlock()

	if len(n.fragments) == 0 {
		return nil, errs.New(errs.NotFound, "inode has no fragments")
	}
	s.inodes[id] = n
	return n, nil
}

// CreateInode reserves a new id and its initial (empty) fragment, and
// caches the resulting Inode.
func (s *Store) CreateInode(parentID *uint32, name string, isDir bool) (*Inode, error) {
	id, err := s.ReserveID()
	if err != nil {
		return nil, err
	}
	n := &Inode{store: s, ID: id, Dir: isDir, Name: name, ParentID: parentID}

	s.tableMutex.Lock()
	for i, d := range s.fragments {
		if d.OwnerID == id {
			n.fragments = append(n.fragments, i)
			break
		}
	}
	s.tableMutex.Unlock()

	s.inodesMutex.Lock()
	s.inodes[id] = n
	s.inodesMutex.Unlock()
	return n, nil
}

// forget drops id from the open-inode cache, used after Destroy.
func (s *Store) forget(id int32) {
	s.inodesMutex.Lock()
	delete(s.inodes, id)
	s.inodesMutex.Unlock()
}

// Size returns the inode's current byte length.
func (n *Inode) Size() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.size
}

// SizeLocked is Size for a caller that already holds n's lock (via
// LockPair), so it must not itself (R)Lock.
func (n *Inode) SizeLocked() int64 {
	return n.size
}

// Rename updates the inode's cached name/parent bookkeeping after a
// directory-level move. It takes its own lock rather than assuming the
// caller holds one, since the moved inode is not one of the two
// directories LockPair locks for the rename.
func (n *Inode) Rename(newName string, newParentID *uint32) {
	n.mu.Lock()
	n.Name = newName
	n.ParentID = newParentID
	n.mu.Unlock()
}

// LockPair locks a and b for writing so a multi-step operation spanning
// both (rename) appears atomic to concurrent Read/Write/Truncate callers.
// The locks are always acquired in ascending ID order, per spec.md §5's
// rule that the two inodes touched by a rename are locked in that order
// to avoid deadlocking against a concurrent rename in the other
// direction. The returned func releases both locks.
func LockPair(a, b *Inode) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.ID < a.ID {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// overlap is the [ofs, ofs+size) intersection of two byte ranges, used to
// map a Read/Write request onto the fragments it touches.
func overlap(aOfs, aSize, bOfs, bSize int64) (ofs, size int64, ok bool) {
	ofs = aOfs
	if bOfs > ofs {
		ofs = bOfs
	}
	end := aOfs + aSize
	if bEnd := bOfs + bSize; bEnd < end {
		end = bEnd
	}
	if end <= ofs {
		return 0, 0, false
	}
	return ofs, end - ofs, true
}

// Read copies up to len(buf) bytes starting at ofs into buf, reading from
// whichever fragments cover that range, and returns the number of bytes
// actually available.
func (n *Inode) Read(buf []byte, ofs int64) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.readLocked(buf, ofs)
}

// ReadLocked is Read for a caller that already holds n's lock (via
// LockPair), so it must not itself RLock.
func (n *Inode) ReadLocked(buf []byte, ofs int64) (int, error) {
	return n.readLocked(buf, ofs)
}

func (n *Inode) readLocked(buf []byte, ofs int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	total := 0
	fragOfs := int64(0)
	for _, idx := range n.fragments {
		n.store.tableMutex.Lock()
		d := n.store.fragments[idx]
		n.store.tableMutex.Unlock()

		o, size, ok := overlap(fragOfs, int64(d.ByteSize), ofs, int64(len(buf)))
		if ok {
			dst := buf[o-ofs : o-ofs+size]
			byteOfs := d.StartBlock*uint64(n.store.blockSize) + uint64(o-fragOfs)
			if err := n.store.readBytes(byteOfs, dst); err != nil {
				return total, err
			}
			total += int(size)
		}
		fragOfs += int64(d.ByteSize)
	}
	return total, nil
}

// Write stores buf at ofs, growing the inode (and allocating fragments)
// first if the write extends past the current size.
func (n *Inode) Write(buf []byte, ofs int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writeLocked(buf, ofs)
}

// WriteAtLocked is Write for a caller that already holds n's lock (via
// LockPair), so it must not itself Lock.
func (n *Inode) WriteAtLocked(buf []byte, ofs int64) error {
	return n.writeLocked(buf, ofs)
}

// writeLocked assumes n.mu is already held for writing.
func (n *Inode) writeLocked(buf []byte, ofs int64) error {
	if len(buf) == 0 {
		return nil
	}
	if n.size < ofs+int64(len(buf)) {
		if err := n.truncateUpLocked(ofs+int64(len(buf)), false); err != nil {
			return err
		}
	}

	fragOfs := int64(0)
	for _, idx := range n.fragments {
		n.store.tableMutex.Lock()
		d := n.store.fragments[idx]
		n.store.tableMutex.Unlock()

		o, size, ok := overlap(fragOfs, int64(d.ByteSize), ofs, int64(len(buf)))
		if ok {
			src := buf[o-ofs : o-ofs+size]
			byteOfs := d.StartBlock*uint64(n.store.blockSize) + uint64(o-fragOfs)
			if err := n.store.writeBytes(byteOfs, src); err != nil {
				return err
			}
		}
		fragOfs += int64(d.ByteSize)
	}
	n.store.c.Sync()
	return nil
}

// Truncate grows or shrinks the inode to exactly size bytes, zero-filling
// any new space when it grows.
func (n *Inode) Truncate(size int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if size == n.size {
		return nil
	}
	if size > n.size {
		return n.truncateUpLocked(size, true)
	}
	return n.truncateDownLocked(size)
}

// truncateUpLocked assumes n.mu is already held for writing.
func (n *Inode) truncateUpLocked(size int64, zero bool) error {
	for n.size < size {
		n.store.tableMutex.Lock()
		lastIdx := n.fragments[len(n.fragments)-1]
		last := n.store.fragments[lastIdx]

		slotIdx, desc, err := n.store.reserveFragmentFor(n.ID, lastIdx, size-n.size)
		if err != nil {
			n.store.tableMutex.Unlock()
			return err
		}
		if want := size - n.size; int64(desc.ByteSize) > want {
			desc.ByteSize = uint32(want)
		}

		nextFree := last.nextFreeBlock(n.store.blockSize)

		switch {
		case last.free():
			// The tail fragment was never actually allocated (a freshly
			// reserved inode): overwrite it in place.
			n.store.fragments[lastIdx] = desc
			if zero {
				n.store.tableMutex.Unlock()
				if err := n.store.zeroBytes(desc.StartBlock*uint64(n.store.blockSize), int64(desc.ByteSize)); err != nil {
					return err
				}
				n.store.tableMutex.Lock()
			}
			n.store.sortOffsets()
			n.size += int64(desc.ByteSize)
			if err := n.store.storeFragmentLocked(lastIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			n.store.tableMutex.Unlock()

		case nextFree == desc.StartBlock && int64(last.ByteSize)+int64(desc.ByteSize) <= maxFragmentBytes:
			// Contiguous with the tail fragment: merge instead of adding
			// a new descriptor. The merged bytes continue straight on from
			// the tail's old end, inside its last block.
			gapStart := last.StartBlock*uint64(n.store.blockSize) + uint64(last.ByteSize)
			n.store.tableMutex.Unlock()
			if zero {
				if err := n.store.zeroBytes(gapStart, int64(desc.ByteSize)); err != nil {
					return err
				}
			}
			n.store.tableMutex.Lock()
			n.store.fragments[lastIdx].ByteSize += desc.ByteSize
			n.size += int64(desc.ByteSize)
			if err := n.store.storeFragmentLocked(lastIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			n.store.tableMutex.Unlock()

		case nextFree == desc.StartBlock:
			// Contiguous, but merging would exceed the per-fragment
			// ceiling: split into two descriptors instead of aborting
			// (see DESIGN.md, 4 GiB ceiling decision).
			room := maxFragmentBytes - last.ByteSize
			merged := desc
			merged.ByteSize = room
			remainder := desc
			remainder.StartBlock = last.StartBlock + uint64((last.ByteSize+room-1)/n.store.blockSize) + 1
			remainder.ByteSize = desc.ByteSize - room

			n.store.fragments[lastIdx].ByteSize += merged.ByteSize
			n.store.fragments[slotIdx] = remainder
			n.fragments = append(n.fragments, slotIdx)
			n.store.sortOffsets()
			n.size += int64(desc.ByteSize)
			if err := n.store.storeFragmentLocked(lastIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			if err := n.store.storeFragmentLocked(slotIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			n.store.tableMutex.Unlock()
			if zero {
				if err := n.store.zeroBytes(desc.StartBlock*uint64(n.store.blockSize), int64(desc.ByteSize)); err != nil {
					return err
				}
			}

		default:
			// Disjoint: a brand new fragment.
			n.store.fragments[slotIdx] = desc
			n.fragments = append(n.fragments, slotIdx)
			n.store.sortOffsets()
			n.size += int64(desc.ByteSize)
			if err := n.store.storeFragmentLocked(slotIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			n.store.tableMutex.Unlock()
			if zero {
				if err := n.store.zeroBytes(desc.StartBlock*uint64(n.store.blockSize), int64(desc.ByteSize)); err != nil {
					return err
				}
			}
		}
	}
	n.store.c.Sync()
	return nil
}

// truncateDownLocked assumes n.mu is already held for writing.
func (n *Inode) truncateDownLocked(size int64) error {
	for n.size > 0 {
		lastIdx := n.fragments[len(n.fragments)-1]

		n.store.tableMutex.Lock()
		d := n.store.fragments[lastIdx]
		n.size -= int64(d.ByteSize)
		newByteSize := size - n.size
		if newByteSize < 0 {
			newByteSize = 0
		}
		d.ByteSize = uint32(newByteSize)
		n.size += int64(d.ByteSize)

		if d.ByteSize == 0 && n.size != 0 {
			d.OwnerID = FreeID
			n.store.fragments[lastIdx] = d
			if err := n.store.storeFragmentLocked(lastIdx); err != nil {
				n.store.tableMutex.Unlock()
				return err
			}
			n.fragments = n.fragments[:len(n.fragments)-1]
			n.store.tableMutex.Unlock()
			continue
		}

		n.store.fragments[lastIdx] = d
		err := n.store.storeFragmentLocked(lastIdx)
		n.store.tableMutex.Unlock()
		if err != nil {
			return err
		}
		break
	}
	n.store.tableMutex.Lock()
	n.store.sortOffsets()
	n.store.tableMutex.Unlock()
	n.store.c.Sync()
	return nil
}

// Destroy frees every fragment owned by the inode and forgets it.
func (n *Inode) Destroy() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.store.tableMutex.Lock()
	for _, idx := range n.fragments {
		n.store.fragments[idx].OwnerID = FreeID
		if err := n.store.storeFragmentLocked(idx); err != nil {
			n.store.tableMutex.Unlock()
			return err
		}
	}
	n.store.sortOffsets()
	n.store.tableMutex.Unlock()

	n.fragments = nil
	n.size = 0
	n.store.c.Sync()
	n.store.forget(n.ID)
	return nil
}
