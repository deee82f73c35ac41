package wallet

// Mnemonic is a 12-word BIP-39 recovery phrase in display order.
type Mnemonic []string

func (m Mnemonic) String() string {
	return joinPhrase(m)
}

type DerivedKeys struct {
	PrivateKey []byte // secp256k1 scalar (32)
	PublicKey  []byte // uncompressed point (65)
	Address    string // 0x + 40 hex
}

func (k *DerivedKeys) PrivateKeyHex() string {
	if k == nil {
		return ""
	}
	return encodeHex(k.PrivateKey)
}

func (k *DerivedKeys) PublicKeyHex() string {
	if k == nil {
		return ""
	}
	return encodeHex(k.PublicKey)
}

// Wipe zeroes the private scalar in place.
func (k *DerivedKeys) Wipe() {
	if k == nil {
		return
	}
	zeroBytes(k.PrivateKey)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
