package coverfs

import (
	"bytes"
	"testing"

	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/direntry"
)

func TestMountFreshContainerCreatesRoot(t *testing.T) {
	dev, err := blockdev.NewMemory(4096, 16384)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	v, err := Mount(dev, Options{Passphrase: "hunter2"})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer v.Unmount()

	if err := v.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}

	root, err := v.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	entries, err := root.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh root directory should be empty, got %+v", entries)
	}
}

func TestMountUnmountRemountRoundTrip(t *testing.T) {
	dev, err := blockdev.NewMemory(4096, 16384)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	v, err := Mount(dev, Options{Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	root, err := v.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	file, err := v.Store().CreateInode(zero(), "hello", false)
	if err != nil {
		t.Fatalf("CreateInode: %v", err)
	}
	if err := file.Write([]byte("hello world\n"), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := root.AddEntry(direntry.Entry{Name: "hello", InodeID: uint32(file.ID), Type: direntry.TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	wantUUID := v.UUID()

	if err := v.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	v2, err := Mount(dev, Options{Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer v2.Unmount()

	if v2.UUID() != wantUUID {
		t.Fatalf("UUID changed across remount")
	}

	root2, err := v2.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	e, err := root2.Find("hello")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	node, err := v2.Store().OpenInode(int32(e.InodeID))
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	got := make([]byte, 12)
	if _, err := node.Read(got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello world\n")) {
		t.Fatalf("Read after remount: got %q", got)
	}
}

func TestMountWrongPassphraseFails(t *testing.T) {
	dev, err := blockdev.NewMemory(4096, 16384)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	v, err := Mount(dev, Options{Passphrase: "correct horse"})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := v.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	if _, err := Mount(dev, Options{Passphrase: "wrong guess"}); !errs.Is(err, errs.BadPassphrase) {
		t.Fatalf("Mount with wrong passphrase: got %v, want BadPassphrase", err)
	}
}

func zero() *uint32 {
	v := uint32(0)
	return &v
}
