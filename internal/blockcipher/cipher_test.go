package blockcipher

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plain := bytes.Repeat([]byte{0x42}, 4096)
	cipherText := make([]byte, len(plain))
	if err := c.Encrypt(7, cipherText, plain); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(cipherText, plain) {
		t.Fatalf("ciphertext equals plaintext")
	}

	got := make([]byte, len(plain))
	if err := c.Decrypt(7, got, cipherText); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("decrypted data does not match original plaintext")
	}
}

func TestEncryptVariesByBlockIndex(t *testing.T) {
	var key [32]byte
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	plain := bytes.Repeat([]byte{0x11}, 32)

	a := make([]byte, len(plain))
	b := make([]byte, len(plain))
	if err := c.Encrypt(1, a, plain); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := c.Encrypt(2, b, plain); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("ciphertext did not change with block index")
	}
}

func TestEncryptRejectsPartialBlock(t *testing.T) {
	var key [32]byte
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	plain := make([]byte, 10)
	dst := make([]byte, 10)
	if err := c.Encrypt(0, dst, plain); err == nil {
		t.Fatalf("expected error for non-block-aligned plaintext")
	}
}
