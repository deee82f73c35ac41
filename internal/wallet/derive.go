package wallet

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

const (
	PrivateKeySize = 32
	PublicKeySize  = 65
)

// DeriveKeys maps a validated phrase to a single secp256k1 keypair. The
// private scalar is SHA-256 of the space-joined phrase; there is no HD path
// and no BIP-39 seed stretching, so results differ from standard wallets.
func DeriveKeys(m Mnemonic) (*DerivedKeys, error) {
	if !ValidateMnemonic(m) {
		return nil, ErrInvalidMnemonic
	}
	seed := sha256.Sum256([]byte(joinPhrase(m)))
	defer zeroBytes(seed[:])

	pub, err := PublicKeyFromPrivate(seed[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return &DerivedKeys{
		PrivateKey: append([]byte(nil), seed[:]...),
		PublicKey:  pub,
		Address:    AddressFromPublicKey(pub),
	}, nil
}

// PublicKeyFromPrivate returns the uncompressed encoding of priv·G. Scalars
// outside [1, n-1] are rejected instead of being reduced.
func PublicKeyFromPrivate(priv []byte) ([]byte, error) {
	if len(priv) != PrivateKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes", ErrInvalidPrivateKey, PrivateKeySize)
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(priv); overflow || scalar.IsZero() {
		scalar.Zero()
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}
	key := secp256k1.NewPrivateKey(&scalar)
	defer key.Zero()
	return key.PubKey().SerializeUncompressed(), nil
}
