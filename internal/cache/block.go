package cache

import "sync"

// block is one cached device block. It carries no back-pointer to its
// owning Cache — the dirty-chain push lives on Cache, which already holds
// both objects when it needs to link one in (see DESIGN.md, cyclic
// reference redesign).
type block struct {
	index uint64
	mu    sync.Mutex
	buf   []byte

	// nextDirty is the index of the next block in the dirty singly-linked
	// list, or -1 if this block is not linked into it or is the chain's
	// last block.
	nextDirty int64
}
