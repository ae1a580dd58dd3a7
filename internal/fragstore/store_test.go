package fragstore

import (
	"testing"

	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dev, err := blockdev.NewMemory(512, 256)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	var key [32]byte
	c, err := blockcipher.New(key)
	if err != nil {
		t.Fatalf("blockcipher.New: %v", err)
	}
	ca := cache.New(dev, c, false)
	s, err := Create(ca, 2, 5, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestReserveIDNeverReuses(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id1)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	if err := n.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	id2, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("ReserveID: got %d after destroying %d, ids must be monotonic", id2, id1)
	}
}

func TestCheckPassesOnFreshTable(t *testing.T) {
	s := newTestStore(t)
	if err := s.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestFreeBlocksAccounting(t *testing.T) {
	s := newTestStore(t)
	free1, _ := s.FreeBlocks()

	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	if err := n.Truncate(4096); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	free2, live := s.FreeBlocks()
	if free2 >= free1 {
		t.Fatalf("FreeBlocks: expected fewer free blocks after growing an inode, got %d -> %d", free1, free2)
	}
	if live == 0 {
		t.Fatalf("FreeBlocks: expected at least one live inode")
	}
}
