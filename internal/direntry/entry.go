// Package direntry encodes directory contents as a dense array of
// fixed-size records stored through a plain fragstore.Inode, the way a
// regular file's bytes are — component 6, the directory layer that sits
// on top of the fragment allocator.
package direntry

import (
	"encoding/binary"
	"strings"

	"github.com/coverfs/coverfs/errs"
)

// EntrySize is the fixed on-disk size of one directory record.
const EntrySize = 128

const (
	nameLen     = 96
	reservedLen = 27
)

// InvalidID marks a record that has been removed; it is left in place
// rather than compacted so existing record offsets never shift under a
// concurrent reader.
const InvalidID uint32 = 0xFFFFFFFF

// Type distinguishes what an entry's inode id refers to.
type Type uint8

const (
	TypeUnknown Type = 0
	TypeFile    Type = 1
	TypeDir     Type = 2
)

// Entry is one 128-byte directory record.
type Entry struct {
	Name    string
	InodeID uint32
	Type    Type
}

func (e Entry) live() bool { return e.InodeID != InvalidID }

func encodeEntry(e Entry, buf []byte) error {
	if len(buf) < EntrySize {
		return errs.New(errs.InvariantViolation, "directory record buffer too small")
	}
	if len(e.Name) > nameLen {
		return errs.New(errs.InvariantViolation, "directory entry name longer than 96 bytes")
	}
	for i := range buf[:EntrySize] {
		buf[i] = 0
	}
	copy(buf[:nameLen], e.Name)
	binary.LittleEndian.PutUint32(buf[nameLen:nameLen+4], e.InodeID)
	buf[nameLen+4] = byte(e.Type)
	return nil
}

func decodeEntry(buf []byte) Entry {
	name := string(buf[:nameLen])
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Entry{
		Name:    name,
		InodeID: binary.LittleEndian.Uint32(buf[nameLen : nameLen+4]),
		Type:    Type(buf[nameLen+4]),
	}
}
