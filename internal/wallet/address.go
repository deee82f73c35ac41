package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	AddressSize  = 20
	walletIDHRP  = "vw1"
	addressIntro = "0x"
)

var (
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// AddressFromPublicKey hashes the lowercase hex text of the public key, not
// the raw bytes, and keeps the trailing 20 bytes.
func AddressFromPublicKey(pub []byte) string {
	sum := sha256.Sum256([]byte(encodeHex(pub)))
	return addressIntro + encodeHex(sum[len(sum)-AddressSize:])
}

func IsValidHex(s string) bool {
	return hexPattern.MatchString(s)
}

func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// WalletID is a display identifier for a public key, distinct from the
// on-chain address.
func WalletID(pub []byte) string {
	if len(pub) != PublicKeySize {
		return ""
	}
	h := blake2b.Sum256(pub)
	return walletIDHRP + base58.Encode(h[:])
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
