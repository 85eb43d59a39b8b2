package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("address bytes mismatch")
	}
	raw, err := ParseAccount(addr.String())
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if FormatAccount(raw) != addr.String() {
		t.Fatalf("format mismatch: %s vs %s", FormatAccount(raw), addr.String())
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	raw := bytes.Repeat([]byte{0x07}, 20)
	foreign := NewAddress(AddressPrefix("foreign"), raw).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected prefix rejection")
	}
	if _, err := ParseAccount("not-an-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFormatAccountZero(t *testing.T) {
	if got := FormatAccount([20]byte{}); got != "" {
		t.Fatalf("expected empty string for zero address, got %q", got)
	}
}

func TestDeriveModuleAddressDeterministic(t *testing.T) {
	a := DeriveModuleAddress("escrow")
	b := DeriveModuleAddress("escrow")
	c := DeriveModuleAddress("deed")
	if a != b {
		t.Fatalf("expected deterministic derivation")
	}
	if a == c {
		t.Fatalf("expected distinct module addresses")
	}
}

func TestParseParticipantRejectsVaultPrefix(t *testing.T) {
	raw := bytes.Repeat([]byte{0x07}, 20)
	vault := NewAddress(VaultPrefix, raw).String()
	if _, err := ParseAccount(vault); err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if _, err := ParseParticipant(vault); err == nil {
		t.Fatalf("expected vault prefix rejection")
	}
	got, err := ParseParticipant(NewAddress(AccountPrefix, raw).String())
	if err != nil {
		t.Fatalf("parse participant: %v", err)
	}
	if !bytes.Equal(got[:], raw) {
		t.Fatalf("participant bytes mismatch")
	}
}
