package fragstore

import (
	"bytes"
	"testing"

	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cache"
)

func TestInodeWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}

	payload := []byte("the quick brown fox jumps over the lazy dog")
	if err := n.Write(payload, 10); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n.Size() != 10+int64(len(payload)) {
		t.Fatalf("Size: got %d, want %d", n.Size(), 10+int64(len(payload)))
	}

	got := make([]byte, len(payload))
	if _, err := n.Read(got, 10); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Read returned %q, want %q", got, payload)
	}
}

func TestInodeTruncateUpZeroesNewSpace(t *testing.T) {
	s := newTestStore(t)

	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}

	if err := n.Truncate(2048); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	got := make([]byte, 2048)
	if _, err := n.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d not zeroed after truncate-up: got %d", i, b)
		}
	}
}

func TestInodeTruncateDownShrinks(t *testing.T) {
	s := newTestStore(t)

	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	if err := n.Write(bytes.Repeat([]byte{0x9}, 4096), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := n.Truncate(100); err != nil {
		t.Fatalf("Truncate down: %v", err)
	}
	if n.Size() != 100 {
		t.Fatalf("Size: got %d, want 100", n.Size())
	}
}

func TestInodeDestroyFreesFragments(t *testing.T) {
	s := newTestStore(t)

	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	n, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	if err := n.Write([]byte("data"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	free1, _ := s.FreeBlocks()
	if err := n.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	free2, _ := s.FreeBlocks()
	if free2 <= free1 {
		t.Fatalf("FreeBlocks: expected more free slots after Destroy, got %d -> %d", free1, free2)
	}

	if err := s.Check(); err != nil {
		t.Fatalf("Check after destroy: %v", err)
	}
}

func TestInodeMultipleInodesDoNotOverlap(t *testing.T) {
	dev, err := blockdev.NewMemory(512, 256)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	var key [32]byte
	cipher, err := blockcipher.New(key)
	if err != nil {
		t.Fatalf("blockcipher.New: %v", err)
	}
	c := cache.New(dev, cipher, false)
	s, err := Create(c, 2, 5, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var nodes []*Inode
	for i := 0; i < 4; i++ {
		id, err := s.ReserveID()
		if err != nil {
			t.Fatalf("ReserveID: %v", err)
		}
		n, err := s.OpenInode(id)
		if err != nil {
			t.Fatalf("OpenInode: %v", err)
		}
		if err := n.Write(bytes.Repeat([]byte{byte(i + 1)}, 1024), 0); err != nil {
			t.Fatalf("Write: %v", err)
		}
		nodes = append(nodes, n)
	}

	if err := s.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	for i, n := range nodes {
		got := make([]byte, 1024)
		if _, err := n.Read(got, 0); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, bytes.Repeat([]byte{byte(i + 1)}, 1024)) {
			t.Fatalf("inode %d contents corrupted by a sibling's write", i)
		}
	}
}
