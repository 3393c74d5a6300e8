package crypto

import (
	"bytes"
	"testing"
)

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}

	for _, n := range []int{0, 16, 64} {
		if _, err := PrivateKeyFromBytes(make([]byte, n)); err == nil {
			t.Errorf("PrivateKeyFromBytes(%d bytes) should fail", n)
		}
	}
}

func TestSign_VerifyTxDigest(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	digest := Blake2b256([]byte("unsigned tx bytes"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig), SignatureSize)
	}
	if !VerifySignature(digest[:], sig, key.PublicKey()) {
		t.Error("signature should verify")
	}

	other := Blake2b256([]byte("other tx bytes"))
	if VerifySignature(other[:], sig, key.PublicKey()) {
		t.Error("signature should not verify against a different digest")
	}

	corrupted := append([]byte(nil), sig...)
	corrupted[0] ^= 0x01
	if VerifySignature(digest[:], corrupted, key.PublicKey()) {
		t.Error("corrupted signature should not verify")
	}
}

func TestSign_InvalidDigestLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if _, err := key.Sign([]byte("too short")); err == nil {
		t.Error("Sign() should reject non-32-byte digest")
	}
}

func TestVerify_InvalidInputs(t *testing.T) {
	if VerifySignature(make([]byte, 32), nil, make([]byte, 33)) {
		t.Error("empty signature should not verify")
	}
	if VerifySignature(make([]byte, 32), make([]byte, 64), nil) {
		t.Error("empty public key should not verify")
	}
}
