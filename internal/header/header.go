// Package header implements the CoverFS volume header (block 0) and the
// passphrase-based key unwrap that guards the master key — component 2 of
// the storage engine. Block 0 is always stored in the clear; it is the key
// material itself, not data the rest of the volume's encryption protects.
package header

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/coverfs/coverfs/errs"
)

const (
	// Magic is the 8-byte identifier at the start of a valid header,
	// including the trailing NUL the original format reserves.
	Magic = "coverfs\x00"

	// SuperblockMagic is the first 8 bytes of block 1.
	SuperblockMagic = "CoverFS\x00"

	// MajorVersion and MinorVersion are the only version this
	// implementation writes or accepts.
	MajorVersion uint16 = 1
	MinorVersion uint16 = 0

	// MaxUsers is the number of user slots the header reserves, of which
	// only the first is populated in this version (spec §3).
	MaxUsers = 4

	// DefaultIterations is the PBKDF2 iteration count used for newly
	// created volumes.
	DefaultIterations uint32 = 1000

	usernameLen      = 128
	wrappedKeyLen    = 32
	encCheckBytesLen = 32
	checkBytesLen    = 32

	userSlotSize = usernameLen + wrappedKeyLen + encCheckBytesLen + checkBytesLen + 4 // 228

	offCRC     = 0
	offMagic   = 4
	offMajor   = 12
	offMinor   = 14
	offSalt    = 16
	offSlots   = 48
	headerSize = offSlots + MaxUsers*userSlotSize // 960
)

// UserSlot is one of the four passphrase slots in the volume header. Only
// slot 0 is populated by this implementation.
type UserSlot struct {
	Username      [usernameLen]byte
	WrappedKey    [wrappedKeyLen]byte
	EncCheckBytes [encCheckBytesLen]byte
	CheckBytes    [checkBytesLen]byte
	Iterations    uint32
}

// Header is the decoded contents of block 0.
type Header struct {
	Major uint16
	Minor uint16
	Salt  [32]byte
	Users [MaxUsers]UserSlot
}

// Encode serializes h into a blockSize-byte buffer with a freshly computed
// CRC over bytes [4, blockSize). blockSize must be at least headerSize.
func (h *Header) Encode(blockSize uint32) ([]byte, error) {
	if int(blockSize) < headerSize {
		return nil, errs.New(errs.InvariantViolation, "block size too small for volume header")
	}
	buf := make([]byte, blockSize)
	copy(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint16(buf[offMajor:], h.Major)
	binary.LittleEndian.PutUint16(buf[offMinor:], h.Minor)
	copy(buf[offSalt:], h.Salt[:])

	for i, slot := range h.Users {
		o := offSlots + i*userSlotSize
		copy(buf[o:], slot.Username[:])
		o += usernameLen
		copy(buf[o:], slot.WrappedKey[:])
		o += wrappedKeyLen
		copy(buf[o:], slot.EncCheckBytes[:])
		o += encCheckBytesLen
		copy(buf[o:], slot.CheckBytes[:])
		o += checkBytesLen
		binary.LittleEndian.PutUint32(buf[o:], slot.Iterations)
	}

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[offCRC:], crc)
	return buf, nil
}

// Decode parses and validates block 0. It returns errs.CorruptVolume for a
// bad magic, CRC mismatch, or unrecognized version.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		return nil, errs.New(errs.CorruptVolume, "block 0 shorter than the volume header")
	}
	if string(buf[offMagic:offMagic+8]) != Magic {
		return nil, errs.New(errs.CorruptVolume, "bad magic")
	}
	storedCRC := binary.LittleEndian.Uint32(buf[offCRC:])
	if gotCRC := crc32.ChecksumIEEE(buf[4:]); gotCRC != storedCRC {
		return nil, errs.New(errs.CorruptVolume, "CRC mismatch")
	}

	h := &Header{
		Major: binary.LittleEndian.Uint16(buf[offMajor:]),
		Minor: binary.LittleEndian.Uint16(buf[offMinor:]),
	}
	if h.Major != MajorVersion || h.Minor != MinorVersion {
		return nil, errs.New(errs.CorruptVolume, "unsupported version")
	}
	copy(h.Salt[:], buf[offSalt:offSalt+32])

	for i := range h.Users {
		o := offSlots + i*userSlotSize
		slot := &h.Users[i]
		copy(slot.Username[:], buf[o:o+usernameLen])
		o += usernameLen
		copy(slot.WrappedKey[:], buf[o:o+wrappedKeyLen])
		o += wrappedKeyLen
		copy(slot.EncCheckBytes[:], buf[o:o+encCheckBytesLen])
		o += encCheckBytesLen
		copy(slot.CheckBytes[:], buf[o:o+checkBytesLen])
		o += checkBytesLen
		slot.Iterations = binary.LittleEndian.Uint32(buf[o:])
	}
	return h, nil
}

// HasMagic reports whether buf begins with the volume header magic, used at
// mount time to decide between the create and the unwrap path.
func HasMagic(buf []byte) bool {
	return len(buf) >= offMagic+8 && string(buf[offMagic:offMagic+8]) == Magic
}
