// Package blockcipher implements the per-block AES-256-CBC transform that
// sits between the write-back cache and the raw block device — component 3
// of the storage engine.
package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/coverfs/coverfs/errs"
)

// Cipher encrypts and decrypts whole blocks under a single master key. It
// holds only the immutable cipher.Block returned by aes.NewCipher, which is
// safe for concurrent use by multiple goroutines; there is no mutex and no
// shared per-call state here (contrast the original's stateful handle).
type Cipher struct {
	block cipher.Block
}

// New builds a Cipher from a 32-byte master key.
func New(masterKey [32]byte) (*Cipher, error) {
	block, err := aes.NewCipher(masterKey[:])
	if err != nil {
		return nil, errs.Wrap(errs.InvariantViolation, "construct block cipher", err)
	}
	return &Cipher{block: block}, nil
}

// iv derives the 16-byte CBC initialization vector for blockIndex: the
// little-endian u32 block index followed by 12 zero bytes, per spec.
func iv(blockIndex uint64) [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint32(out[:4], uint32(blockIndex))
	return out
}

// Encrypt encrypts plaintext (a whole number of 16-byte AES blocks, usually
// one device block) in place into dst using the IV derived from blockIndex.
// Block 0 (the volume header) is never passed through this layer.
func (c *Cipher) Encrypt(blockIndex uint64, dst, plaintext []byte) error {
	if len(plaintext)%aes.BlockSize != 0 {
		return errs.New(errs.InvariantViolation, "plaintext is not a multiple of the AES block size")
	}
	v := iv(blockIndex)
	mode := cipher.NewCBCEncrypter(c.block, v[:])
	mode.CryptBlocks(dst, plaintext)
	return nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(blockIndex uint64, dst, ciphertext []byte) error {
	if len(ciphertext)%aes.BlockSize != 0 {
		return errs.New(errs.InvariantViolation, "ciphertext is not a multiple of the AES block size")
	}
	v := iv(blockIndex)
	mode := cipher.NewCBCDecrypter(c.block, v[:])
	mode.CryptBlocks(dst, ciphertext)
	return nil
}
