package direntry

import (
	"testing"

	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cache"
	"github.com/coverfs/coverfs/internal/fragstore"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
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
	s, err := fragstore.Create(c, 2, 5, 2)
	if err != nil {
		t.Fatalf("fragstore.Create: %v", err)
	}
	id, err := s.ReserveID()
	if err != nil {
		t.Fatalf("ReserveID: %v", err)
	}
	node, err := s.OpenInode(id)
	if err != nil {
		t.Fatalf("OpenInode: %v", err)
	}
	return New(node)
}

func TestAddFindEntry(t *testing.T) {
	d := newTestDirectory(t)

	if err := d.AddEntry(Entry{Name: "hello", InodeID: 7, Type: TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	e, err := d.Find("hello")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if e.InodeID != 7 || e.Type != TypeFile {
		t.Fatalf("Find returned %+v", e)
	}
}

func TestAddEntryRejectsDuplicate(t *testing.T) {
	d := newTestDirectory(t)
	if err := d.AddEntry(Entry{Name: "a", InodeID: 1, Type: TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := d.AddEntry(Entry{Name: "a", InodeID: 2, Type: TypeFile}); !errs.Is(err, errs.AlreadyExists) {
		t.Fatalf("AddEntry duplicate: got %v, want AlreadyExists", err)
	}
}

func TestRemoveEntryTombstonesInPlace(t *testing.T) {
	d := newTestDirectory(t)
	if err := d.AddEntry(Entry{Name: "a", InodeID: 1, Type: TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := d.AddEntry(Entry{Name: "b", InodeID: 2, Type: TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	countBefore := d.count()

	if err := d.RemoveEntry("a"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if d.count() != countBefore {
		t.Fatalf("RemoveEntry changed the slot count: %d -> %d", countBefore, d.count())
	}
	if _, err := d.Find("a"); !errs.Is(err, errs.NotFound) {
		t.Fatalf("Find after remove: got %v, want NotFound", err)
	}

	list, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "b" {
		t.Fatalf("List after remove: got %+v", list)
	}
}

func TestAddEntryReusesTombstone(t *testing.T) {
	d := newTestDirectory(t)
	if err := d.AddEntry(Entry{Name: "a", InodeID: 1, Type: TypeFile}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := d.RemoveEntry("a"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	countBefore := d.count()

	if err := d.AddEntry(Entry{Name: "c", InodeID: 3, Type: TypeDir}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if d.count() != countBefore {
		t.Fatalf("AddEntry after tombstone grew the payload: %d -> %d", countBefore, d.count())
	}
}
