package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
)

func newTestCache(t *testing.T) (*Cache, blockdev.Device) {
	t.Helper()
	dev, err := blockdev.NewMemory(4096, 16)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	var key [32]byte
	cipher, err := blockcipher.New(key)
	if err != nil {
		t.Fatalf("blockcipher.New: %v", err)
	}
	return New(dev, cipher, false), dev
}

func TestWriteBorrowFlushesToDevice(t *testing.T) {
	c, dev := newTestCache(t)

	bw, err := c.WriteBorrow(2)
	if err != nil {
		t.Fatalf("WriteBorrow: %v", err)
	}
	copy(bw.Bytes(), bytes.Repeat([]byte{0x7A}, 4096))
	if err := bw.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	c.Sync()

	deadline := time.Now().Add(2 * time.Second)
	for c.DirtyCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.DirtyCount() != 0 {
		t.Fatalf("dirty count did not reach zero after sync")
	}

	out := make([]byte, 4096)
	if err := dev.ReadAt(2, 1, out); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	// The device holds ciphertext; decrypt it to compare with what was written.
	if err := c.cipher.Decrypt(2, out, out); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	want := bytes.Repeat([]byte{0x7A}, 4096)
	if !bytes.Equal(out, want) {
		t.Fatalf("device does not hold the flushed block contents")
	}
}

func TestReadBorrowSeesWrittenData(t *testing.T) {
	c, _ := newTestCache(t)

	bw, err := c.WriteBorrow(0)
	if err != nil {
		t.Fatalf("WriteBorrow: %v", err)
	}
	copy(bw.Bytes(), []byte("hello"))
	if err := bw.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	br, err := c.ReadBorrow(0)
	if err != nil {
		t.Fatalf("ReadBorrow: %v", err)
	}
	got := string(br.Bytes()[:5])
	if err := br.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadBorrow: got %q, want %q", got, "hello")
	}
}

func TestShutdownDrainsDirtyBlocks(t *testing.T) {
	c, dev := newTestCache(t)

	for i := uint64(0); i < 4; i++ {
		bw, err := c.WriteBorrow(i)
		if err != nil {
			t.Fatalf("WriteBorrow(%d): %v", i, err)
		}
		copy(bw.Bytes(), bytes.Repeat([]byte{byte(i + 1)}, 4096))
		if err := bw.Release(); err != nil {
			t.Fatalf("Release(%d): %v", i, err)
		}
	}

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for i := uint64(0); i < 4; i++ {
		out := make([]byte, 4096)
		if err := dev.ReadAt(i, 1, out); err != nil {
			t.Fatalf("ReadAt(%d): %v", i, err)
		}
		if err := c.cipher.Decrypt(i, out, out); err != nil {
			t.Fatalf("Decrypt(%d): %v", i, err)
		}
		want := bytes.Repeat([]byte{byte(i + 1)}, 4096)
		if !bytes.Equal(out, want) {
			t.Fatalf("block %d not flushed before shutdown returned", i)
		}
	}
}

func TestPrefetchFillsMissingBlocks(t *testing.T) {
	c, dev := newTestCache(t)

	payload := bytes.Repeat([]byte{0x55}, 4096)
	// Blocks are stored encrypted on the device, so store the ciphertext.
	stored := make([]byte, len(payload))
	if err := c.cipher.Encrypt(5, stored, payload); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := dev.WriteAt(5, 1, stored); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := c.Prefetch(5, 2); err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if c.CachedBlockCount() != 2 {
		t.Fatalf("CachedBlockCount: got %d, want 2", c.CachedBlockCount())
	}

	br, err := c.ReadBorrow(5)
	if err != nil {
		t.Fatalf("ReadBorrow: %v", err)
	}
	got := append([]byte(nil), br.Bytes()...)
	if err := br.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("prefetched block does not match device contents")
	}
}
