package wallet

import (
	"strings"
	"testing"
)

func TestIsValidHex(t *testing.T) {
	for _, s := range []string{"00", "deadBEEF", "0123456789abcdef"} {
		if !IsValidHex(s) {
			t.Fatalf("expected valid hex: %q", s)
		}
	}
	for _, s := range []string{"", "0x00", "zz", "12 34", "abc\n"} {
		if IsValidHex(s) {
			t.Fatalf("expected invalid hex: %q", s)
		}
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("0x" + strings.Repeat("aB", 20)) {
		t.Fatal("expected mixed-case address to be valid")
	}
	for _, s := range []string{
		"",
		strings.Repeat("a", 40),
		"0x" + strings.Repeat("a", 39),
		"0x" + strings.Repeat("a", 41),
		"0X" + strings.Repeat("a", 40),
		"0x" + strings.Repeat("g", 40),
	} {
		if IsValidAddress(s) {
			t.Fatalf("expected invalid address: %q", s)
		}
	}
}

func TestWalletIDStableAndPrefixed(t *testing.T) {
	keys, err := DeriveKeys(zeroVector())
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	id := WalletID(keys.PublicKey)
	if !strings.HasPrefix(id, "vw1") || len(id) < 40 {
		t.Fatalf("unexpected wallet id: %q", id)
	}
	if again := WalletID(append([]byte(nil), keys.PublicKey...)); again != id {
		t.Fatal("wallet id must be deterministic")
	}
	if WalletID(keys.PublicKey[:33]) != "" {
		t.Fatal("expected empty wallet id for compressed-size input")
	}
}
