package header

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/coverfs/coverfs/errs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h, _, err := Create("correct horse battery staple")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	buf, err := h.Encode(4096)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !HasMagic(buf) {
		t.Fatalf("HasMagic: expected true on a freshly encoded header")
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := deep.Equal(got, h); diff != nil {
		t.Fatalf("decoded header differs from original: %v", diff)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	h, _, err := Create("passphrase")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	buf, err := h.Encode(4096)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	corrupt := make([]byte, len(buf))
	copy(corrupt, buf)
	corrupt[100] ^= 0xFF

	if _, err := Decode(corrupt); !errs.Is(err, errs.CorruptVolume) {
		t.Fatalf("Decode: got %v, want CorruptVolume", err)
	}
}

func TestUnwrapCorrectPassphrase(t *testing.T) {
	h, masterKey, err := Create("hunter2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := Unwrap(h, "hunter2")
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if got != masterKey {
		t.Fatalf("Unwrap returned a different master key than Create generated")
	}
}

func TestUnwrapBadPassphrase(t *testing.T) {
	h, _, err := Create("hunter2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := Unwrap(h, "wrong guess"); !errs.Is(err, errs.BadPassphrase) {
		t.Fatalf("Unwrap: got %v, want BadPassphrase", err)
	}
}

func TestUnwrapSurvivesEncodeDecode(t *testing.T) {
	h, masterKey, err := Create("round trip me")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	buf, err := h.Encode(4096)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := Unwrap(decoded, "round trip me")
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if got != masterKey {
		t.Fatalf("Unwrap after round trip returned a different master key")
	}
}
