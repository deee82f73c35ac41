package backup

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"vision-wallet/go-backend/internal/envelope"
)

const (
	formatVersion = 1
	saltSize      = 16
	filePrefix    = "VWBAK1\n"
	kdfArgon2id   = "argon2id"

	MinPassphraseLen = 8
)

// Upper bounds on KDF parameters accepted from a blob, so a crafted file
// cannot make Import allocate unbounded memory.
const (
	maxKDFTime     = 16
	maxKDFMemoryKB = 1024 * 1024
	maxKDFThreads  = 16
)

var (
	ErrAuthFailed     = errors.New("backup authentication failed")
	ErrInvalid        = errors.New("backup blob is invalid")
	ErrWeakPassphrase = errors.New("backup passphrase is too short")
)

// KDFParams are the argon2id cost parameters recorded in each blob.
type KDFParams struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

var DefaultKDFParams = KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

var randReader io.Reader = rand.Reader

// Blob is the JSON document that follows the file prefix.
type Blob struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Export seals the wallet payload under a key stretched from passphrase. The
// result is independent of the device secret and can be restored on any
// machine that knows the passphrase.
func Export(passphrase string, p *envelope.Payload) ([]byte, error) {
	return ExportWithParams(passphrase, p, DefaultKDFParams)
}

func ExportWithParams(passphrase string, p *envelope.Payload, params KDFParams) ([]byte, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	plaintext, err := envelope.MarshalPayload(p)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("backup salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("backup nonce: %w", err)
	}

	blob := &Blob{
		Version:     formatVersion,
		KDF:         kdfArgon2id,
		KDFTime:     params.Time,
		KDFMemoryKB: params.MemoryKB,
		KDFThreads:  params.Threads,
		Salt:        salt,
		Nonce:       nonce,
	}
	aead, err := blob.aead(passphrase)
	if err != nil {
		return nil, err
	}
	blob.Ciphertext = aead.Seal(nil, nonce, plaintext, blob.additionalData())

	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

// Import opens a blob produced by Export. A wrong passphrase and a tampered
// blob both yield ErrAuthFailed.
func Import(passphrase string, data []byte) (*envelope.Payload, error) {
	rest, ok := bytes.CutPrefix(data, []byte(filePrefix))
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalid, filePrefix[:len(filePrefix)-1])
	}
	var blob Blob
	if err := json.Unmarshal(rest, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := blob.validate(); err != nil {
		return nil, err
	}
	aead, err := blob.aead(passphrase)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, blob.additionalData())
	if err != nil {
		return nil, ErrAuthFailed
	}
	defer zeroBytes(plaintext)

	p, err := envelope.UnmarshalPayload(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

func (b *Blob) validate() error {
	if b.Version != formatVersion || b.KDF != kdfArgon2id {
		return fmt.Errorf("%w: unsupported version %d kdf %q", ErrInvalid, b.Version, b.KDF)
	}
	if len(b.Salt) != saltSize || len(b.Nonce) != chacha20poly1305.NonceSizeX {
		return fmt.Errorf("%w: bad salt or nonce length", ErrInvalid)
	}
	if len(b.Ciphertext) < chacha20poly1305.Overhead {
		return fmt.Errorf("%w: ciphertext too short", ErrInvalid)
	}
	return b.params().validate()
}

func (b *Blob) params() KDFParams {
	return KDFParams{Time: b.KDFTime, MemoryKB: b.KDFMemoryKB, Threads: b.KDFThreads}
}

// additionalData binds the KDF header so cost parameters cannot be swapped
// without failing authentication.
func (b *Blob) additionalData() []byte {
	return fmt.Appendf(nil, "%s%d|%s|%d|%d|%d", filePrefix, b.Version, b.KDF, b.KDFTime, b.KDFMemoryKB, b.KDFThreads)
}

func (b *Blob) aead(passphrase string) (cipher.AEAD, error) {
	p := b.params()
	key := argon2.IDKey([]byte(passphrase), b.Salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
	defer zeroBytes(key)
	return chacha20poly1305.NewX(key)
}

func (p KDFParams) validate() error {
	if p.Time == 0 || p.Time > maxKDFTime ||
		p.MemoryKB < 8*uint32(max(p.Threads, 1)) || p.MemoryKB > maxKDFMemoryKB ||
		p.Threads == 0 || p.Threads > maxKDFThreads {
		return fmt.Errorf("%w: kdf parameters out of range", ErrInvalid)
	}
	return nil
}

func checkPassphrase(passphrase string) error {
	if utf8.RuneCountInString(passphrase) < MinPassphraseLen {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassphrase, MinPassphraseLen)
	}
	return nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
