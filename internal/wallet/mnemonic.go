package wallet

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tyler-smith/go-bip39"
)

const (
	MnemonicWords = 12
	entropyBits   = 128
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrEntropy         = errors.New("entropy source unavailable")
)

// GenerateMnemonic draws 128 bits from crypto/rand and encodes them as a
// 12-word phrase.
func GenerateMnemonic() (Mnemonic, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	defer zeroBytes(entropy)
	return MnemonicFromEntropy(entropy)
}

func MnemonicFromEntropy(entropy []byte) (Mnemonic, error) {
	if len(entropy)*8 != entropyBits {
		return nil, fmt.Errorf("%w: entropy must be %d bits", ErrInvalidMnemonic, entropyBits)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	words := strings.Fields(phrase)
	if len(words) != MnemonicWords {
		return nil, fmt.Errorf("%w: unexpected word count %d", ErrInvalidMnemonic, len(words))
	}
	return Mnemonic(words), nil
}

func ValidateMnemonic(words []string) bool {
	if len(words) != MnemonicWords {
		return false
	}
	for _, w := range words {
		if w == "" || strings.ContainsFunc(w, unicode.IsSpace) {
			return false
		}
	}
	return bip39.IsMnemonicValid(joinPhrase(words))
}

// ParseMnemonic splits a user-entered phrase and validates it.
func ParseMnemonic(phrase string) (Mnemonic, error) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: phrase is empty", ErrInvalidMnemonic)
	}
	if !ValidateMnemonic(words) {
		return nil, ErrInvalidMnemonic
	}
	return Mnemonic(words), nil
}

func joinPhrase(words []string) string {
	return strings.Join(words, " ")
}
