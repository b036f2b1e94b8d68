package cryptoutil

import (
	"bytes"
	"testing"
)

func testKernel(t *testing.T) *Kernel {
	t.Helper()
	master := make([]byte, KeySize)
	for i := range master {
		master[i] = byte(i)
	}
	k, err := NewKernel(master)
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	return k
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	k := testKernel(t)
	roomKey, err := GenerateRoomKey()
	if err != nil {
		t.Fatalf("GenerateRoomKey: %v", err)
	}

	wrapped, err := k.WrapRoomKey(roomKey)
	if err != nil {
		t.Fatalf("WrapRoomKey: %v", err)
	}
	if len(wrapped) != NonceSize+KeySize+TagSize {
		t.Fatalf("unexpected wrapped length: %d", len(wrapped))
	}

	unwrapped, err := k.UnwrapRoomKey(wrapped)
	if err != nil {
		t.Fatalf("UnwrapRoomKey: %v", err)
	}
	if !bytes.Equal(roomKey, unwrapped) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestUnwrapRejectsTamperedCiphertext(t *testing.T) {
	k := testKernel(t)
	roomKey, _ := GenerateRoomKey()
	wrapped, _ := k.WrapRoomKey(roomKey)
	wrapped[len(wrapped)-1] ^= 0xFF

	if _, err := k.UnwrapRoomKey(wrapped); err == nil {
		t.Fatalf("expected tamper to be detected")
	}
}

func TestMessageEncryptDecryptRoundTrip(t *testing.T) {
	roomKey, _ := GenerateRoomKey()
	plaintext := "hello, room"

	ct, nonce, tag, err := EncryptMessage(roomKey, plaintext)
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	if len(tag) != TagSize {
		t.Fatalf("unexpected tag size: %d", len(tag))
	}
	if len(nonce) != NonceSize {
		t.Fatalf("unexpected nonce size: %d", len(nonce))
	}

	got, err := DecryptMessage(roomKey, ct, nonce, tag)
	if err != nil {
		t.Fatalf("DecryptMessage: %v", err)
	}
	if got != plaintext {
		t.Fatalf("expected %q, got %q", plaintext, got)
	}
}

func TestDecryptMessageForArchiveSentinel(t *testing.T) {
	roomKey, _ := GenerateRoomKey()
	ct, nonce, tag, _ := EncryptMessage(roomKey, "hello")
	tag[0] ^= 0xFF

	got, err := DecryptMessageForArchive(roomKey, ct, nonce, tag)
	if err == nil {
		t.Fatalf("expected decryption error")
	}
	if got != DecryptionFailedSentinel {
		t.Fatalf("expected sentinel, got %q", got)
	}
}
