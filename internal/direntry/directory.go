package direntry

import (
	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/fragstore"
)

// Directory is a view over an inode whose payload is a dense array of
// Entry records.
type Directory struct {
	node *fragstore.Inode
}

// New wraps an inode as a Directory. The inode must already exist (the
// root directory, or one created via a prior Mkdir/CreateFile AddEntry).
func New(node *fragstore.Inode) *Directory {
	return &Directory{node: node}
}

// ID returns the underlying inode's id, so callers (path.go's Volume.Rename)
// can update a moved inode's cached parent bookkeeping.
func (d *Directory) ID() int32 {
	return d.node.ID
}

func (d *Directory) count() int {
	return int(d.node.Size() / EntrySize)
}

func (d *Directory) readSlot(i int) (Entry, error) {
	buf := make([]byte, EntrySize)
	if _, err := d.node.Read(buf, int64(i)*EntrySize); err != nil {
		return Entry{}, err
	}
	return decodeEntry(buf), nil
}

func (d *Directory) writeSlot(i int, e Entry) error {
	buf := make([]byte, EntrySize)
	if err := encodeEntry(e, buf); err != nil {
		return err
	}
	return d.node.Write(buf, int64(i)*EntrySize)
}

// countLocked/readSlotLocked/writeSlotLocked mirror count/readSlot/
// writeSlot for a caller that already holds the directory inode's lock
// (via fragstore.LockPair), so they use the *Locked inode accessors
// instead of Read/Write/Size, which would otherwise re-lock and deadlock.
func (d *Directory) countLocked() int {
	return int(d.node.SizeLocked() / EntrySize)
}

func (d *Directory) readSlotLocked(i int) (Entry, error) {
	buf := make([]byte, EntrySize)
	if _, err := d.node.ReadLocked(buf, int64(i)*EntrySize); err != nil {
		return Entry{}, err
	}
	return decodeEntry(buf), nil
}

func (d *Directory) writeSlotLocked(i int, e Entry) error {
	buf := make([]byte, EntrySize)
	if err := encodeEntry(e, buf); err != nil {
		return err
	}
	return d.node.WriteAtLocked(buf, int64(i)*EntrySize)
}

func (d *Directory) findLocked(name string) (Entry, error) {
	n := d.countLocked()
	for i := 0; i < n; i++ {
		e, err := d.readSlotLocked(i)
		if err != nil {
			return Entry{}, err
		}
		if e.live() && e.Name == name {
			return e, nil
		}
	}
	return Entry{}, errs.New(errs.NotFound, "no directory entry named "+name)
}

func (d *Directory) removeEntryLocked(name string) error {
	n := d.countLocked()
	for i := 0; i < n; i++ {
		e, err := d.readSlotLocked(i)
		if err != nil {
			return err
		}
		if e.live() && e.Name == name {
			return d.writeSlotLocked(i, Entry{InodeID: InvalidID})
		}
	}
	return errs.New(errs.NotFound, "no directory entry named "+name)
}

func (d *Directory) addEntryLocked(e Entry) error {
	if _, err := d.findLocked(e.Name); err == nil {
		return errs.New(errs.AlreadyExists, "directory entry already exists: "+e.Name)
	}
	n := d.countLocked()
	for i := 0; i < n; i++ {
		existing, err := d.readSlotLocked(i)
		if err != nil {
			return err
		}
		if !existing.live() {
			return d.writeSlotLocked(i, e)
		}
	}
	return d.writeSlotLocked(n, e)
}

// Find looks up name among the directory's live entries.
func (d *Directory) Find(name string) (Entry, error) {
	n := d.count()
	for i := 0; i < n; i++ {
		e, err := d.readSlot(i)
		if err != nil {
			return Entry{}, err
		}
		if e.live() && e.Name == name {
			return e, nil
		}
	}
	return Entry{}, errs.New(errs.NotFound, "no directory entry named "+name)
}

// AddEntry appends e to the directory, reusing the first tombstoned slot
// if one exists instead of growing the payload.
func (d *Directory) AddEntry(e Entry) error {
	if _, err := d.Find(e.Name); err == nil {
		return errs.New(errs.AlreadyExists, "directory entry already exists: "+e.Name)
	}

	n := d.count()
	for i := 0; i < n; i++ {
		existing, err := d.readSlot(i)
		if err != nil {
			return err
		}
		if !existing.live() {
			return d.writeSlot(i, e)
		}
	}
	return d.writeSlot(n, e)
}

// RemoveEntry marks name's slot as a tombstone, leaving it in place so
// other slots' offsets never shift.
func (d *Directory) RemoveEntry(name string) error {
	n := d.count()
	for i := 0; i < n; i++ {
		e, err := d.readSlot(i)
		if err != nil {
			return err
		}
		if e.live() && e.Name == name {
			return d.writeSlot(i, Entry{InodeID: InvalidID})
		}
	}
	return errs.New(errs.NotFound, "no directory entry named "+name)
}

// List returns every live entry in storage order.
func (d *Directory) List() ([]Entry, error) {
	n := d.count()
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := d.readSlot(i)
		if err != nil {
			return nil, err
		}
		if e.live() {
			out = append(out, e)
		}
	}
	return out, nil
}

// Rename moves the entry named oldName out of src and into dest as
// newName, and returns the moved entry (so the caller can update the
// moved inode's own cached name/parent bookkeeping). Grounded on
// original_source/src/CSimpleFS.cpp's SimpleFilesystem::Rename
// (Find in the old directory, RemoveEntry, rename the in-memory record,
// AddEntry to the new directory), adapted to spec.md §5's rule that the
// two directory inodes are locked for the rename's entirety in ascending
// id order rather than under a single recursive lock.
func Rename(src, dest *Directory, oldName, newName string) (Entry, error) {
	unlock := fragstore.LockPair(src.node, dest.node)
	defer unlock()

	e, err := src.findLocked(oldName)
	if err != nil {
		return Entry{}, err
	}
	if err := src.removeEntryLocked(oldName); err != nil {
		return Entry{}, err
	}

	e.Name = newName
	if err := dest.addEntryLocked(e); err != nil {
		// Put the entry back under its old name so a failed rename never
		// loses it.
		src.addEntryLocked(Entry{Name: oldName, InodeID: e.InodeID, Type: e.Type})
		return Entry{}, err
	}
	return e, nil
}
