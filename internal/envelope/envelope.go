package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize = 32
	IVSize  = 12
	TagSize = 16
)

var (
	ErrEncryptionFailure = errors.New("envelope encryption failed")
	ErrDecryptionFailure = errors.New("envelope decryption failed")
	ErrMalformed         = errors.New("envelope record is malformed")
)

var randReader io.Reader = rand.Reader

// Envelope is an AES-256-GCM IV and ciphertext pair; the ciphertext carries
// the authentication tag.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
}

type envelopeRecord struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

func Encrypt(key []byte, p *Payload) (*Envelope, error) {
	plaintext, err := MarshalPayload(p)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrEncryptionFailure, err)
	}
	return &Envelope{
		IV:         iv,
		Ciphertext: aead.Seal(nil, iv, plaintext, nil),
	}, nil
}

func Decrypt(key []byte, env *Envelope) (*Payload, error) {
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	plaintext, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailure)
	}
	defer zeroBytes(plaintext)

	p, err := UnmarshalPayload(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return p, nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(envelopeRecord{
		IV:         hex.EncodeToString(e.IV),
		Ciphertext: hex.EncodeToString(e.Ciphertext),
	})
}

func (e *Envelope) UnmarshalJSON(raw []byte) error {
	var rec envelopeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	iv, err := hex.DecodeString(rec.IV)
	if err != nil {
		return fmt.Errorf("%w: iv is not hex", ErrMalformed)
	}
	ciphertext, err := hex.DecodeString(rec.Ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext is not hex", ErrMalformed)
	}
	out := Envelope{IV: iv, Ciphertext: ciphertext}
	if err := out.validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

func (e *Envelope) validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrMalformed)
	}
	if len(e.IV) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformed, IVSize, len(e.IV))
	}
	if len(e.Ciphertext) < TagSize {
		return fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformed)
	}
	return nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
