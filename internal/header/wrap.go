package header

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/coverfs/coverfs/errs"
)

const masterKeyLen = 32

// deriveWrappingKey stretches passphrase into a 32-byte wrapping key using
// PBKDF2-HMAC-SHA256, salted and iterated per the stored slot — grounded on
// the original's gcry_kdf_derive(..., GCRY_KDF_PBKDF2, GCRY_MD_SHA256, ...).
func deriveWrappingKey(passphrase string, salt [32]byte, iterations uint32) [32]byte {
	key := pbkdf2.Key([]byte(passphrase), salt[:], int(iterations), 32, sha256.New)
	var out [32]byte
	copy(out[:], key)
	return out
}

// ecbEncrypt/ecbDecrypt run AES-256 in raw ECB mode over buf, one 16-byte
// block at a time, len(buf) must be a multiple of 16. Go's standard crypto
// packages deliberately do not expose ECB (see DESIGN.md); this is the
// minimal primitive spec.md's key-wrap format requires.
func ecbEncrypt(key [32]byte, buf []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(buf))
	bs := block.BlockSize()
	for i := 0; i+bs <= len(buf); i += bs {
		block.Encrypt(out[i:i+bs], buf[i:i+bs])
	}
	return out, nil
}

func ecbDecrypt(key [32]byte, buf []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(buf))
	bs := block.BlockSize()
	for i := 0; i+bs <= len(buf); i += bs {
		block.Decrypt(out[i:i+bs], buf[i:i+bs])
	}
	return out, nil
}

// Create initializes a fresh volume header for the given passphrase: a
// random salt, a random 256-bit master key, and slot 0's wrapped key plus
// double-encrypted check token. It returns the header (ready to Encode) and
// the master key the caller needs to build the block cipher layer.
func Create(passphrase string) (*Header, [masterKeyLen]byte, error) {
	return CreateWithIterations(passphrase, DefaultIterations)
}

// CreateWithIterations is Create with an explicit PBKDF2 iteration count,
// letting cmd/coverfs's configuration layer (internal/cliconfig) override
// the default cost for newly created volumes.
func CreateWithIterations(passphrase string, iterations uint32) (*Header, [masterKeyLen]byte, error) {
	var masterKey [masterKeyLen]byte
	if _, err := rand.Read(masterKey[:]); err != nil {
		return nil, masterKey, errs.Wrap(errs.IoError, "generate master key", err)
	}

	h := &Header{Major: MajorVersion, Minor: MinorVersion}
	if _, err := rand.Read(h.Salt[:]); err != nil {
		return nil, masterKey, errs.Wrap(errs.IoError, "generate volume salt", err)
	}

	slot := &h.Users[0]
	slot.Iterations = iterations
	copy(slot.Username[:], "poke")

	if _, err := rand.Read(slot.EncCheckBytes[:]); err != nil {
		return nil, masterKey, errs.Wrap(errs.IoError, "generate check nonce", err)
	}

	wrappingKey := deriveWrappingKey(passphrase, h.Salt, slot.Iterations)

	checkBytes, err := ecbEncrypt(wrappingKey, slot.EncCheckBytes[:])
	if err != nil {
		return nil, masterKey, errs.Wrap(errs.IoError, "encrypt check token", err)
	}
	copy(slot.CheckBytes[:], checkBytes)

	wrappedKey, err := ecbEncrypt(wrappingKey, masterKey[:])
	if err != nil {
		return nil, masterKey, errs.Wrap(errs.IoError, "wrap master key", err)
	}
	copy(slot.WrappedKey[:], wrappedKey)

	return h, masterKey, nil
}

// Unwrap validates passphrase against h's slot 0 and, on success, returns
// the decrypted master key. It returns errs.BadPassphrase on mismatch.
func Unwrap(h *Header, passphrase string) ([masterKeyLen]byte, error) {
	var masterKey [masterKeyLen]byte
	slot := &h.Users[0]

	wrappingKey := deriveWrappingKey(passphrase, h.Salt, slot.Iterations)

	check, err := ecbEncrypt(wrappingKey, slot.EncCheckBytes[:])
	if err != nil {
		return masterKey, errs.Wrap(errs.IoError, "recompute check token", err)
	}
	if string(check) != string(slot.CheckBytes[:]) {
		return masterKey, errs.New(errs.BadPassphrase, "passphrase does not unlock this volume")
	}

	plain, err := ecbDecrypt(wrappingKey, slot.WrappedKey[:])
	if err != nil {
		return masterKey, errs.Wrap(errs.IoError, "unwrap master key", err)
	}
	copy(masterKey[:], plain)
	return masterKey, nil
}

// NewVolumeUUID returns a fresh random volume identifier, stored in the
// superblock's reserved bytes (see DESIGN.md).
func NewVolumeUUID() [16]byte {
	id := uuid.NewV4()
	var out [16]byte
	copy(out[:], id.Bytes())
	return out
}
